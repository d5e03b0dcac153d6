package artifacts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
)

// MetricsPattern matches the metrics files written by the trainer
const MetricsPattern = "*_metrics.json"

var (
	// ErrNoMetrics is returned when the models directory holds no metrics file
	ErrNoMetrics = errors.New("no metrics found")
	// ErrArtifactMissing is returned when metrics exist but the referenced model file does not
	ErrArtifactMissing = errors.New("artifact file not found")
)

// Locator discovers the newest metrics document in a models directory
type Locator struct {
	dir    string
	logger *slog.Logger
}

// NewLocator creates a new locator for dir
func NewLocator(dir string, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{dir: dir, logger: logger}
}

// MetricsFileName returns the metrics file name the trainer writes for a model
func MetricsFileName(modelName string) string {
	return modelName + "_metrics.json"
}

// FindLatest returns the most recently modified metrics file. The directory is
// created when missing; ErrNoMetrics is returned when it holds no metrics file.
func (l *Locator) FindLatest() (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create models dir: %w", err)
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return "", fmt.Errorf("read models dir: %w", err)
	}

	var latestPath string
	var latestInfo os.FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(MetricsPattern, entry.Name()); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		if latestInfo == nil || info.ModTime().After(latestInfo.ModTime()) {
			latestPath = filepath.Join(l.dir, entry.Name())
			latestInfo = info
		}
	}

	if latestPath == "" {
		return "", ErrNoMetrics
	}
	return latestPath, nil
}

// LoadLatest loads the newest metrics document, or nil when none is available.
// Unreadable and malformed files are logged and reported as nil.
func (l *Locator) LoadLatest() *models.MetricsDocument {
	path, err := l.FindLatest()
	if err != nil {
		if !errors.Is(err, ErrNoMetrics) {
			l.logger.Warn("metrics lookup failed", "dir", l.dir, "error", err)
		}
		return nil
	}

	doc, err := ReadMetrics(path)
	if err != nil {
		l.logger.Warn("ignoring unreadable metrics file", "path", path, "error", err)
		return nil
	}
	return doc
}

// ReadMetrics reads and parses a single metrics file
func ReadMetrics(path string) (*models.MetricsDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := models.ParseMetricsDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}

	doc.SourcePath = path
	if info, err := os.Stat(path); err == nil {
		doc.ModTime = info.ModTime()
	}
	return doc, nil
}

// ResolveArtifact returns the on-disk path of a model file referenced by doc.
// Relative paths are looked up next to the metrics file.
func ResolveArtifact(doc *models.MetricsDocument, kind models.ArtifactKind) (string, error) {
	path := doc.Path(kind)
	if path == "" {
		return "", fmt.Errorf("%w: no %s path in metrics", ErrArtifactMissing, kind)
	}
	if !filepath.IsAbs(path) && doc.SourcePath != "" {
		path = filepath.Join(filepath.Dir(doc.SourcePath), filepath.Base(path))
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrArtifactMissing, path)
	}
	return path, nil
}
