package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/models"
)

// MemoryApplicationStore keeps applications in process. Every read and write
// copies, so callers never alias stored maps.
type MemoryApplicationStore struct {
	mu   sync.Mutex
	apps map[string]*models.Application
	now  func() time.Time
}

func NewMemoryApplicationStore() *MemoryApplicationStore {
	return &MemoryApplicationStore{
		apps: make(map[string]*models.Application),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryApplicationStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[app.ApplicationID]; ok {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateApplication, app.ApplicationID)
	}
	now := s.now()
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = now
	}
	app.Status = models.StatusNew
	app.LastUpdated = now
	s.apps[app.ApplicationID] = app.Clone()
	return nil
}

func (s *MemoryApplicationStore) Get(_ context.Context, applicationID string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[applicationID]
	if !ok {
		return nil, fmt.Errorf("%w: application %s", errors.ErrNotFound, applicationID)
	}
	return app.Clone(), nil
}

func (s *MemoryApplicationStore) TransitionStatus(_ context.Context, applicationID string, from []models.Status, update models.StatusUpdate) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[applicationID]
	if !ok {
		return nil, fmt.Errorf("%w: application %s", errors.ErrNotFound, applicationID)
	}
	if !containsStatus(from, app.Status) {
		return nil, fmt.Errorf("%w: application %s is %s", errors.ErrConflict, applicationID, app.Status)
	}

	app.Status = update.Status
	app.FailedStage = update.FailedStage
	app.FailureReason = update.FailureReason
	if update.RunID != "" {
		app.RunID = update.RunID
	}
	app.LastUpdated = s.now()
	return app.Clone(), nil
}

func (s *MemoryApplicationStore) SaveExtraction(_ context.Context, applicationID, runID string, content map[string]models.ExtractedDocument) error {
	return s.guarded(applicationID, runID, func(app *models.Application) {
		app.ExtractedContent = make(map[string]models.ExtractedDocument, len(content))
		for k, v := range content {
			app.ExtractedContent[k] = v.Clone()
		}
	})
}

func (s *MemoryApplicationStore) SetReport(_ context.Context, applicationID, runID, locator string) error {
	return s.guarded(applicationID, runID, func(app *models.Application) {
		app.Report = locator
	})
}

// owns reports whether runID is the current run of applicationID.
func (s *MemoryApplicationStore) owns(applicationID, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[applicationID]
	if !ok {
		return fmt.Errorf("%w: application %s", errors.ErrNotFound, applicationID)
	}
	if app.RunID != runID {
		return fmt.Errorf("%w: application %s", errors.ErrStaleRun, applicationID)
	}
	return nil
}

func (s *MemoryApplicationStore) guarded(applicationID, runID string, mutate func(*models.Application)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[applicationID]
	if !ok {
		return fmt.Errorf("%w: application %s", errors.ErrNotFound, applicationID)
	}
	if app.RunID != runID {
		return fmt.Errorf("%w: application %s", errors.ErrStaleRun, applicationID)
	}
	mutate(app)
	app.LastUpdated = s.now()
	return nil
}

func containsStatus(set []models.Status, s models.Status) bool {
	for _, st := range set {
		if st == s {
			return true
		}
	}
	return false
}

// MemoryEvaluationStore keeps every version in process. Run ownership is
// checked against apps.
type MemoryEvaluationStore struct {
	mu       sync.RWMutex
	apps     *MemoryApplicationStore
	versions map[string][][]byte
}

func NewMemoryEvaluationStore(apps *MemoryApplicationStore) *MemoryEvaluationStore {
	return &MemoryEvaluationStore{apps: apps, versions: make(map[string][][]byte)}
}

// Put stores a serialized copy as the next version.
func (s *MemoryEvaluationStore) Put(_ context.Context, runID string, result *models.EvaluationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.apps.owns(result.ApplicationID, runID); err != nil {
		return err
	}

	result.Version = len(s.versions[result.ApplicationID]) + 1
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}
	s.versions[result.ApplicationID] = append(s.versions[result.ApplicationID], data)
	return nil
}

func (s *MemoryEvaluationStore) Get(_ context.Context, applicationID string) (*models.EvaluationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.versions[applicationID]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: evaluation %s", errors.ErrNotFound, applicationID)
	}
	var result models.EvaluationResult
	if err := json.Unmarshal(versions[len(versions)-1], &result); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	return &result, nil
}

// Versions returns how many versions exist for applicationID.
func (s *MemoryEvaluationStore) Versions(applicationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.versions[applicationID])
}
