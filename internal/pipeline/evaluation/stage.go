// Package evaluation asks the oracle to judge an application and scores the judgment.
package evaluation

import (
	"context"
	"fmt"
	"time"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/metrics"
	"admissions-workers/internal/common/oracle"
	"admissions-workers/internal/models"
)

type Oracle interface {
	Evaluate(ctx context.Context, snapshot oracle.Snapshot) (*models.OracleJudgment, error)
}

type ResultWriter interface {
	Put(ctx context.Context, runID string, result *models.EvaluationResult) error
}

type Stage struct {
	oracle Oracle
	store  ResultWriter
	logger logger.Logger
	now    func() time.Time
}

func NewStage(o Oracle, store ResultWriter, log logger.Logger) *Stage {
	return &Stage{
		oracle: o,
		store:  store,
		logger: logger.Component(log, "evaluation"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run judges app and writes one EvaluationResult. Nothing is written when the
// oracle fails, its judgment cannot be scored, or app.RunID no longer owns the
// application.
func (s *Stage) Run(ctx context.Context, app *models.Application) (*models.EvaluationResult, error) {
	judgment, err := s.oracle.Evaluate(ctx, oracle.SnapshotOf(app))
	if err != nil {
		return nil, err
	}

	result, err := Score(app.ApplicationID, judgment, s.now())
	if err != nil {
		return nil, errors.NewOracleError(errors.OracleReasonMalformedResponse, err)
	}

	if err := s.store.Put(ctx, app.RunID, result); err != nil {
		return nil, fmt.Errorf("save evaluation: %w", err)
	}
	metrics.Decisions.WithLabelValues(string(result.FinalDecision)).Inc()

	s.logger.Info("evaluation completed", map[string]interface{}{
		"applicationId":  app.ApplicationID,
		"runId":          app.RunID,
		"version":        result.Version,
		"screening":      string(result.Level1.Status),
		"compositeScore": result.CompositeScore,
		"decision":       string(result.FinalDecision),
		"funding":        result.FundingRecommendation,
	})
	return result, nil
}
