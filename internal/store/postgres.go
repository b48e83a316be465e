package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/models"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const applicationColumns = `application_id, status, failed_stage, failure_reason, run_id,
	documents, extracted_content, profile, report, submitted_at, last_updated`

// PostgresApplicationStore is the lib/pq backed ApplicationStore.
type PostgresApplicationStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresApplicationStore(db *sql.DB) *PostgresApplicationStore {
	return &PostgresApplicationStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresApplicationStore) Create(ctx context.Context, app *models.Application) error {
	documents, err := json.Marshal(app.Documents)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	profile, err := marshalNullable(app.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	now := s.now()
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = now
	}
	app.Status = models.StatusNew
	app.LastUpdated = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (application_id, status, documents, profile, submitted_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (application_id) DO NOTHING`,
		app.ApplicationID, string(app.Status), documents, profile, app.SubmittedAt, app.LastUpdated,
	)
	if err != nil {
		return errors.NewDatabaseError("create application", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateApplication, app.ApplicationID)
	}
	return nil
}

func (s *PostgresApplicationStore) Get(ctx context.Context, applicationID string) (*models.Application, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE application_id = $1`, applicationID)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: application %s", errors.ErrNotFound, applicationID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get application", err)
	}
	return app, nil
}

func (s *PostgresApplicationStore) TransitionStatus(ctx context.Context, applicationID string, from []models.Status, update models.StatusUpdate) (*models.Application, error) {
	fromStr := make([]string, len(from))
	for i, st := range from {
		fromStr[i] = string(st)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE applications
		SET status = $3, failed_stage = $4, failure_reason = $5,
		    run_id = COALESCE(NULLIF($6, ''), run_id), last_updated = $7
		WHERE application_id = $1 AND status = ANY($2)
		RETURNING `+applicationColumns,
		applicationID, pq.Array(fromStr), string(update.Status), string(update.FailedStage),
		update.FailureReason, update.RunID, s.now(),
	)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, missOrConflict(ctx, s.db, applicationID, errors.ErrConflict)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("transition status", err)
	}
	return app, nil
}

func (s *PostgresApplicationStore) SaveExtraction(ctx context.Context, applicationID, runID string, content map[string]models.ExtractedDocument) error {
	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal extracted content: %w", err)
	}
	return s.guardedUpdate(ctx, "save extraction", `
		UPDATE applications SET extracted_content = $3, last_updated = $4
		WHERE application_id = $1 AND run_id = $2`,
		applicationID, runID, data, s.now())
}

func (s *PostgresApplicationStore) SetReport(ctx context.Context, applicationID, runID, locator string) error {
	return s.guardedUpdate(ctx, "set report", `
		UPDATE applications SET report = $3, last_updated = $4
		WHERE application_id = $1 AND run_id = $2`,
		applicationID, runID, locator, s.now())
}

func (s *PostgresApplicationStore) guardedUpdate(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.NewDatabaseError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError(op, err)
	}
	if n == 0 {
		return missOrConflict(ctx, s.db, args[0].(string), errors.ErrStaleRun)
	}
	return nil
}

// missOrConflict distinguishes an absent row from a failed guard.
func missOrConflict(ctx context.Context, db *sql.DB, applicationID string, conflict error) error {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM applications WHERE application_id = $1)`, applicationID).Scan(&exists)
	if err != nil {
		return errors.NewDatabaseError("check application", err)
	}
	if !exists {
		return fmt.Errorf("%w: application %s", errors.ErrNotFound, applicationID)
	}
	return fmt.Errorf("%w: application %s", conflict, applicationID)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app                          models.Application
		status, failedStage          string
		documents, extracted, profile []byte
	)
	err := row.Scan(&app.ApplicationID, &status, &failedStage, &app.FailureReason, &app.RunID,
		&documents, &extracted, &profile, &app.Report, &app.SubmittedAt, &app.LastUpdated)
	if err != nil {
		return nil, err
	}
	app.Status = models.Status(status)
	app.FailedStage = models.Stage(failedStage)

	if err := unmarshalNullable(documents, &app.Documents); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	if err := unmarshalNullable(extracted, &app.ExtractedContent); err != nil {
		return nil, fmt.Errorf("decode extracted content: %w", err)
	}
	if err := unmarshalNullable(profile, &app.Profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &app, nil
}

func marshalNullable(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// PostgresEvaluationStore is the lib/pq backed EvaluationStore.
type PostgresEvaluationStore struct {
	db *sql.DB
}

func NewPostgresEvaluationStore(db *sql.DB) *PostgresEvaluationStore {
	return &PostgresEvaluationStore{db: db}
}

// Put inserts the next version in one statement, so a reader sees either the
// previous version or the complete new one. Nothing is inserted unless runID
// owns the application.
func (s *PostgresEvaluationStore) Put(ctx context.Context, runID string, result *models.EvaluationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}

	var version int
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO evaluations (application_id, version, composite_score, final_decision, result, evaluated_at)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, $4, $5
		FROM evaluations WHERE application_id = $1
		HAVING EXISTS (SELECT 1 FROM applications WHERE application_id = $1 AND run_id = $6)
		RETURNING version`,
		result.ApplicationID, result.CompositeScore, string(result.FinalDecision), data, result.EvaluatedAt, runID,
	).Scan(&version)
	if err == sql.ErrNoRows {
		return missOrConflict(ctx, s.db, result.ApplicationID, errors.ErrStaleRun)
	}
	if err != nil {
		return errors.NewDatabaseError("put evaluation", err)
	}
	result.Version = version
	return nil
}

func (s *PostgresEvaluationStore) Get(ctx context.Context, applicationID string) (*models.EvaluationResult, error) {
	var (
		version int
		data    []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, result FROM evaluations
		WHERE application_id = $1
		ORDER BY version DESC LIMIT 1`, applicationID).Scan(&version, &data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: evaluation %s", errors.ErrNotFound, applicationID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get evaluation", err)
	}

	var result models.EvaluationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	result.Version = version
	return &result, nil
}
