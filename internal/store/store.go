// Package store persists applications and evaluations.
package store

import (
	"context"

	"admissions-workers/internal/models"
)

// ApplicationStore owns Application records. TransitionStatus is the only way
// status changes, and it is a compare-and-set on the current status.
type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	Get(ctx context.Context, applicationID string) (*models.Application, error)
	// TransitionStatus applies update only if the current status is one of from.
	// It returns errors.ErrConflict when the status did not match.
	TransitionStatus(ctx context.Context, applicationID string, from []models.Status, update models.StatusUpdate) (*models.Application, error)
	// SaveExtraction replaces extracted_content if runID still owns the application.
	SaveExtraction(ctx context.Context, applicationID, runID string, content map[string]models.ExtractedDocument) error
	// SetReport records the report locator if runID still owns the application.
	SetReport(ctx context.Context, applicationID, runID, locator string) error
}

// EvaluationStore keeps versioned evaluation results. Put never mutates an
// existing version and writes only while runID owns the application.
type EvaluationStore interface {
	Put(ctx context.Context, runID string, result *models.EvaluationResult) error
	Get(ctx context.Context, applicationID string) (*models.EvaluationResult, error)
}
