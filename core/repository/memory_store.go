package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// MemoryRunStore keeps run history in process memory. It is used when no
// database is configured; history is lost on restart.
type MemoryRunStore struct {
	mu     sync.RWMutex
	runs   map[string]*models.TrainingRun
	events map[string][]models.RunEvent
	nextID int64
	clock  clock.Clock
}

// NewMemoryRunStore creates an empty in-memory store. Timestamps come from clk,
// the wall clock when nil.
func NewMemoryRunStore(clk clock.Clock) *MemoryRunStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryRunStore{
		runs:   make(map[string]*models.TrainingRun),
		events: make(map[string][]models.RunEvent),
		clock:  clk,
	}
}

// CreateRun stores a copy of run, assigning an id when it has none
func (s *MemoryRunStore) CreateRun(_ context.Context, run *models.TrainingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.UpdatedAt = s.clock.Now()
	s.runs[run.ID] = copyRun(run)
	s.appendEventLocked(run.ID, nil, run.Status, models.ReasonRunStarted)
	return nil
}

// UpdateRunStatus replaces the stored run and records the transition
func (s *MemoryRunStore) UpdateRunStatus(_ context.Context, run *models.TrainingRun, from models.TrainingStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	run.UpdatedAt = s.clock.Now()
	s.runs[run.ID] = copyRun(run)
	s.appendEventLocked(run.ID, &from, run.Status, reason)
	return nil
}

func (s *MemoryRunStore) appendEventLocked(runID string, from *models.TrainingStatus, to models.TrainingStatus, reason string) {
	s.nextID++
	event := models.RunEvent{
		ID:       s.nextID,
		RunID:    runID,
		At:       s.clock.Now(),
		ToStatus: to,
		Reason:   reason,
	}
	if from != nil {
		f := *from
		event.FromStatus = &f
	}
	s.events[runID] = append(s.events[runID], event)
}

// GetRun retrieves a run by ID
func (s *MemoryRunStore) GetRun(_ context.Context, id string) (*models.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return copyRun(run), nil
}

// ListRuns lists runs, newest first
func (s *MemoryRunStore) ListRuns(_ context.Context, limit int) ([]*models.TrainingRun, error) {
	s.mu.RLock()
	runs := make([]*models.TrainingRun, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, copyRun(run))
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if limit = clampLimit(limit); len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetRunEvents lists a run's events in order
func (s *MemoryRunStore) GetRunEvents(_ context.Context, id string) ([]models.RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.runs[id]; !ok {
		return nil, ErrRunNotFound
	}
	return append([]models.RunEvent(nil), s.events[id]...), nil
}

func copyRun(run *models.TrainingRun) *models.TrainingRun {
	c := *run
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		c.FinishedAt = &t
	}
	c.ArtifactURIs = append([]string(nil), run.ArtifactURIs...)
	return &c
}
