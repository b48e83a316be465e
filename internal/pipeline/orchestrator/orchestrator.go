// Package orchestrator drives an application through extraction, evaluation
// and report generation, one run at a time.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/metrics"
	"admissions-workers/internal/common/observability"
	"admissions-workers/internal/models"
	"admissions-workers/internal/pipeline/extraction"
	"admissions-workers/internal/store"

	"github.com/google/uuid"
)

// ReasonCancelled is the failure reason recorded when a run is cancelled
// between stages.
const ReasonCancelled = "cancelled"

type ExtractionRunner interface {
	Run(ctx context.Context, app *models.Application) (*extraction.Result, error)
}

type EvaluationRunner interface {
	Run(ctx context.Context, app *models.Application) (*models.EvaluationResult, error)
}

type ReportRunner interface {
	Run(ctx context.Context, app *models.Application) (string, error)
}

// StatusCache is a best-effort read cache of status views.
type StatusCache interface {
	Get(ctx context.Context, applicationID string) (*models.StatusView, bool)
	Set(ctx context.Context, view *models.StatusView)
	Invalidate(ctx context.Context, applicationID string)
}

// Deps are the collaborators of an Orchestrator. Cache, Notifier and
// Observability are optional.
type Deps struct {
	Applications  store.ApplicationStore
	Extraction    ExtractionRunner
	Evaluation    EvaluationRunner
	Report        ReportRunner
	Cache         StatusCache
	Notifier      Notifier
	Observability *observability.Observability
}

// RunResult is the outcome of a synchronous run.
type RunResult struct {
	ApplicationID string          `json:"application_id"`
	RunID         string          `json:"run_id"`
	Status        models.Status   `json:"status"`
	FailedStage   models.Stage    `json:"failed_stage,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Decision      models.Decision `json:"final_decision,omitempty"`
	Report        string          `json:"report,omitempty"`
}

type Orchestrator struct {
	apps       store.ApplicationStore
	extraction ExtractionRunner
	evaluation EvaluationRunner
	report     ReportRunner
	cache      StatusCache
	notifier   Notifier
	obs        *observability.Observability
	logger     logger.Logger
	newRunID   func() string

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	active  map[string]activeRun
}

// activeRun is the cancel handle of one background run.
type activeRun struct {
	runID  string
	cancel context.CancelFunc
}

func New(deps Deps, log logger.Logger) *Orchestrator {
	obs := deps.Observability
	if obs == nil {
		obs = observability.Noop()
	}
	base, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		apps:       deps.Applications,
		extraction: deps.Extraction,
		evaluation: deps.Evaluation,
		report:     deps.Report,
		cache:      deps.Cache,
		notifier:   deps.Notifier,
		obs:        obs,
		logger:     logger.Component(log, "orchestrator"),
		newRunID:   func() string { return uuid.New().String() },
		baseCtx:    base,
		stop:       stop,
		active:     make(map[string]activeRun),
	}
}

// Submit records a new application in NEW. An empty id is generated.
func (o *Orchestrator) Submit(ctx context.Context, app *models.Application) (*models.StatusView, error) {
	if app.ApplicationID == "" {
		app.ApplicationID = uuid.New().String()
	}
	if app.Documents == nil {
		app.Documents = map[string]string{}
	}
	app.ExtractedContent = nil
	app.Report = ""
	app.RunID = ""
	if err := o.apps.Create(ctx, app); err != nil {
		return nil, err
	}

	view := app.View()
	o.cacheSet(ctx, view)
	o.logger.Info("application submitted", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"documents":     len(app.Documents),
	})
	return view, nil
}

// Start claims the application for a new run and drives every stage.
// ErrAlreadyRunning is returned when a run already owns it; of two racing
// calls exactly one claims.
func (o *Orchestrator) Start(ctx context.Context, applicationID string) (*RunResult, error) {
	app, err := o.claimStart(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return o.drive(ctx, app, models.StageExtraction)
}

// ResumeFrom re-enters the pipeline at stage. It is allowed only from FAILED,
// at or before the stage that failed.
func (o *Orchestrator) ResumeFrom(ctx context.Context, applicationID string, stage models.Stage) (*RunResult, error) {
	app, err := o.claimResume(ctx, applicationID, stage)
	if err != nil {
		return nil, err
	}
	return o.drive(ctx, app, stage)
}

// StartAsync claims like Start and runs the stages in the background.
func (o *Orchestrator) StartAsync(ctx context.Context, applicationID string) (string, error) {
	app, err := o.claimStart(ctx, applicationID)
	if err != nil {
		return "", err
	}
	o.background(app, models.StageExtraction)
	return app.RunID, nil
}

// ResumeFromAsync claims like ResumeFrom and runs the stages in the background.
func (o *Orchestrator) ResumeFromAsync(ctx context.Context, applicationID string, stage models.Stage) (string, error) {
	app, err := o.claimResume(ctx, applicationID, stage)
	if err != nil {
		return "", err
	}
	o.background(app, stage)
	return app.RunID, nil
}

// Cancel asks the background run of applicationID to stop at the next stage
// boundary. Only runs started by this process can be cancelled.
func (o *Orchestrator) Cancel(applicationID string) error {
	o.mu.Lock()
	run, ok := o.active[applicationID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no active run for application %s", errors.ErrNotFound, applicationID)
	}
	run.cancel()
	return nil
}

// GetStatus is read-only. The cache is consulted first.
func (o *Orchestrator) GetStatus(ctx context.Context, applicationID string) (*models.StatusView, error) {
	if o.cache != nil {
		if view, ok := o.cache.Get(ctx, applicationID); ok {
			return view, nil
		}
	}
	app, err := o.apps.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	view := app.View()
	o.cacheSet(ctx, view)
	return view, nil
}

// Shutdown cancels background runs and waits for them to record their state.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every background run has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) background(app *models.Application, first models.Stage) {
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.mu.Lock()
	o.active[app.ApplicationID] = activeRun{runID: app.RunID, cancel: cancel}
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			// A later run may already have registered itself under the same id.
			o.mu.Lock()
			if cur, ok := o.active[app.ApplicationID]; ok && cur.runID == app.RunID {
				delete(o.active, app.ApplicationID)
			}
			o.mu.Unlock()
			cancel()
		}()
		if _, err := o.drive(ctx, app, first); err != nil {
			o.logger.Warn("background run ended with error", map[string]interface{}{
				"applicationId": app.ApplicationID,
				"runId":         app.RunID,
				"error":         err,
			})
		}
	}()
}

func (o *Orchestrator) claimStart(ctx context.Context, applicationID string) (*models.Application, error) {
	app, err := o.apps.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := checkTarget(app, models.StatusExtracting); err != nil {
		return nil, err
	}
	return o.claim(ctx, applicationID, startable, models.StatusExtracting)
}

func (o *Orchestrator) claimResume(ctx context.Context, applicationID string, stage models.Stage) (*models.Application, error) {
	if stage.Index() < 0 {
		return nil, fmt.Errorf("%w: unknown stage %q", errors.ErrInvalidTransition, stage)
	}
	app, err := o.apps.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := checkTarget(app, stage.RunningStatus()); err != nil {
		return nil, err
	}

	if app.Status != models.StatusFailed || app.FailedStage.Index() < 0 || stage.Index() > app.FailedStage.Index() {
		return nil, fmt.Errorf("%w: cannot resume %s at %s from %s(%s)",
			errors.ErrInvalidTransition, applicationID, stage, app.Status, app.FailedStage)
	}
	return o.claim(ctx, applicationID, []models.Status{app.Status}, stage.RunningStatus())
}

func checkTarget(app *models.Application, to models.Status) error {
	if app.Status.IsInProgress() {
		return fmt.Errorf("%w: application %s is %s", errors.ErrAlreadyRunning, app.ApplicationID, app.Status)
	}
	if !CanTransition(app.Status, to) {
		return fmt.Errorf("%w: application %s is %s", errors.ErrInvalidTransition, app.ApplicationID, app.Status)
	}
	return nil
}

// claim is the compare-and-set that hands the application to a new run.
func (o *Orchestrator) claim(ctx context.Context, applicationID string, from []models.Status, to models.Status) (*models.Application, error) {
	runID := o.newRunID()
	app, err := o.apps.TransitionStatus(ctx, applicationID, from, models.StatusUpdate{Status: to, RunID: runID})
	if err != nil {
		if !errors.Is(err, errors.ErrConflict) {
			return nil, err
		}
		// Lost the race; report what won.
		current, gerr := o.apps.Get(ctx, applicationID)
		if gerr != nil {
			return nil, gerr
		}
		if cerr := checkTarget(current, to); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("%w: application %s changed to %s", errors.ErrAlreadyRunning, applicationID, current.Status)
	}

	o.cacheSet(ctx, app.View())
	o.logger.Info("run claimed", map[string]interface{}{
		"applicationId": applicationID,
		"runId":         runID,
		"status":        string(to),
	})
	return app, nil
}

// drive runs stages from first until the pipeline completes, waits for
// documents or fails. Cancellation is observed only between stages.
func (o *Orchestrator) drive(ctx context.Context, app *models.Application, first models.Stage) (*RunResult, error) {
	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	res := &RunResult{ApplicationID: app.ApplicationID, RunID: app.RunID}
	stage := first
	for {
		if ctx.Err() != nil {
			metrics.StageRuns.WithLabelValues(string(stage), metrics.OutcomeCancelled).Inc()
			return o.fail(ctx, app, stage, ReasonCancelled, res, ctx.Err())
		}

		decision, locator, err := o.runStage(ctx, stage, app)
		if err != nil {
			return o.fail(ctx, app, stage, err.Error(), res, err)
		}
		if decision != "" {
			res.Decision = decision
		}
		if locator != "" {
			res.Report = locator
		}

		if stage == models.StageEvaluation && decision == models.DecisionRequestDocuments {
			app, err = o.advance(ctx, app, models.StatusEvaluating, models.StatusAwaitingDocuments)
			if err != nil {
				return nil, err
			}
			return o.finish(ctx, app, res), nil
		}

		app, err = o.advance(ctx, app, stage.RunningStatus(), stage.DoneStatus())
		if err != nil {
			return nil, err
		}
		next, ok := stage.Next()
		if !ok {
			return o.finish(ctx, app, res), nil
		}

		if ctx.Err() != nil {
			metrics.StageRuns.WithLabelValues(string(next), metrics.OutcomeCancelled).Inc()
			return o.fail(ctx, app, next, ReasonCancelled, res, ctx.Err())
		}
		app, err = o.advance(ctx, app, stage.DoneStatus(), next.RunningStatus())
		if err != nil {
			return nil, err
		}
		stage = next
	}
}

// runStage runs one stage to completion. The stage does not see the run's
// cancellation; a cancelled run stops at the next boundary.
func (o *Orchestrator) runStage(ctx context.Context, stage models.Stage, app *models.Application) (models.Decision, string, error) {
	start := time.Now()
	ctx, span := o.obs.StartSpan(context.WithoutCancel(ctx), "pipeline."+strings.ToLower(string(stage)), app.ApplicationID)

	var (
		decision models.Decision
		locator  string
		err      error
	)
	switch stage {
	case models.StageExtraction:
		_, err = o.extraction.Run(ctx, app)
	case models.StageEvaluation:
		var result *models.EvaluationResult
		if result, err = o.evaluation.Run(ctx, app); err == nil {
			decision = result.FinalDecision
		}
	case models.StageReport:
		locator, err = o.report.Run(ctx, app)
	default:
		err = fmt.Errorf("unknown stage %q", stage)
	}
	observability.EndSpan(span, err)

	elapsed := time.Since(start)
	outcome := metrics.OutcomeSucceeded
	if err != nil {
		outcome = metrics.OutcomeFailed
	}
	metrics.StageRuns.WithLabelValues(string(stage), outcome).Inc()
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	o.obs.RecordStage(ctx, string(stage), outcome, elapsed)

	o.logger.Debug("stage finished", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"runId":         app.RunID,
		"stage":         string(stage),
		"outcome":       outcome,
		"durationMs":    elapsed.Milliseconds(),
	})
	return decision, locator, err
}

// advance moves the run's own application from -> to. Store writes ignore
// cancellation so the final state of a cancelled run is always recorded.
func (o *Orchestrator) advance(ctx context.Context, app *models.Application, from, to models.Status) (*models.Application, error) {
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, from, to)
	}
	wctx := context.WithoutCancel(ctx)
	next, err := o.apps.TransitionStatus(wctx, app.ApplicationID, []models.Status{from}, models.StatusUpdate{Status: to})
	if err != nil {
		o.logger.Error("run lost ownership", map[string]interface{}{
			"applicationId": app.ApplicationID,
			"runId":         app.RunID,
			"from":          string(from),
			"to":            string(to),
			"error":         err,
		})
		return nil, err
	}
	o.cacheSet(wctx, next.View())
	return next, nil
}

func (o *Orchestrator) fail(ctx context.Context, app *models.Application, stage models.Stage, reason string, res *RunResult, cause error) (*RunResult, error) {
	wctx := context.WithoutCancel(ctx)
	failed, err := o.apps.TransitionStatus(wctx, app.ApplicationID, []models.Status{app.Status}, models.StatusUpdate{
		Status:        models.StatusFailed,
		FailedStage:   stage,
		FailureReason: reason,
	})
	if err != nil {
		o.logger.Error("could not record stage failure", map[string]interface{}{
			"applicationId": app.ApplicationID,
			"runId":         app.RunID,
			"stage":         string(stage),
			"error":         err,
		})
		return nil, err
	}
	o.cacheSet(wctx, failed.View())

	o.logger.Error("stage failed", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"runId":         app.RunID,
		"stage":         string(stage),
		"reason":        reason,
	})
	res = o.finish(wctx, failed, res)
	return res, errors.NewStageFailure(string(stage), cause)
}

func (o *Orchestrator) finish(ctx context.Context, app *models.Application, res *RunResult) *RunResult {
	res.Status = app.Status
	res.FailedStage = app.FailedStage
	res.FailureReason = app.FailureReason
	if app.Report != "" {
		res.Report = app.Report
	}

	if app.Status != models.StatusFailed {
		o.logger.Info("run finished", map[string]interface{}{
			"applicationId": app.ApplicationID,
			"runId":         app.RunID,
			"status":        string(app.Status),
			"decision":      string(res.Decision),
		})
	}
	if o.notifier != nil {
		o.notifier.Notify(context.WithoutCancel(ctx), EventFor(res))
	}
	return res
}

func (o *Orchestrator) cacheSet(ctx context.Context, view *models.StatusView) {
	if o.cache != nil {
		o.cache.Set(ctx, view)
	}
}
