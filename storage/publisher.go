package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/artifacts"
	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
)

// ObjectStore uploads local files to a remote bucket
type ObjectStore interface {
	// Upload stores the file at localPath under key and returns its URI
	Upload(ctx context.Context, key, localPath, contentType string) (string, error)
}

// Publisher mirrors the files of a completed run into an object store
type Publisher struct {
	store  ObjectStore
	prefix string
	logger *slog.Logger
}

// NewPublisher creates a new artifact publisher
func NewPublisher(store ObjectStore, prefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// ObjectKey returns the key a run file is stored under
func (p *Publisher) ObjectKey(run *models.TrainingRun, fileName string) string {
	return path.Join(p.prefix, run.ModelName, run.ID, fileName)
}

// Publish uploads the metrics file and both model files of a run. Every file is
// attempted; the URIs of the successful uploads are returned with a joined error
// for the rest.
func (p *Publisher) Publish(ctx context.Context, run *models.TrainingRun, doc *models.MetricsDocument) ([]string, error) {
	if doc == nil {
		return nil, artifacts.ErrNoMetrics
	}

	type upload struct {
		path        string
		contentType string
	}
	uploads := []upload{{path: doc.SourcePath, contentType: "application/json"}}

	var errs []error
	for _, kind := range []models.ArtifactKind{models.ArtifactKindKeras, models.ArtifactKindTFLite} {
		localPath, err := artifacts.ResolveArtifact(doc, kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		uploads = append(uploads, upload{path: localPath, contentType: "application/octet-stream"})
	}

	var uris []string
	for _, u := range uploads {
		if u.path == "" {
			errs = append(errs, errors.New("metrics document has no source path"))
			continue
		}
		if _, err := os.Stat(u.path); err != nil {
			errs = append(errs, err)
			continue
		}

		key := p.ObjectKey(run, filepath.Base(u.path))
		uri, err := p.store.Upload(ctx, key, u.path, u.contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("upload %s: %w", key, err))
			continue
		}
		p.logger.Info("artifact published", "run_id", run.ID, "uri", uri)
		uris = append(uris, uri)
	}

	return uris, errors.Join(errs...)
}
