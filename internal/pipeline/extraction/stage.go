// Package extraction runs text extraction over every submitted document,
// tolerating individual failures.
package extraction

import (
	"context"
	"fmt"
	"sort"
	"time"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/metrics"
	"admissions-workers/internal/models"

	"golang.org/x/sync/errgroup"
)

// Extractor turns one stored document into text and fields.
type Extractor interface {
	Extract(ctx context.Context, reference string) (*models.ExtractedDocument, error)
}

// ContentWriter persists the consolidated extraction for the owning run.
type ContentWriter interface {
	SaveExtraction(ctx context.Context, applicationID, runID string, content map[string]models.ExtractedDocument) error
}

type Config struct {
	Concurrency int
	CallTimeout time.Duration
}

// Result summarizes one extraction pass.
type Result struct {
	Content    map[string]models.ExtractedDocument
	Successful int
	Failed     int
	Total      int
}

type Stage struct {
	extractor Extractor
	store     ContentWriter
	config    Config
	logger    logger.Logger
}

func NewStage(extractor Extractor, store ContentWriter, cfg Config, log logger.Logger) *Stage {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Stage{
		extractor: extractor,
		store:     store,
		config:    cfg,
		logger:    logger.Component(log, "extraction"),
	}
}

type outcome struct {
	key string
	doc models.ExtractedDocument
}

// Run extracts every document of app and saves the result once. Per-document
// failures become markers; only a persistence failure is returned.
func (s *Stage) Run(ctx context.Context, app *models.Application) (*Result, error) {
	keys := make([]string, 0, len(app.Documents))
	for k := range app.Documents {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outcomes := make([]outcome, len(keys))
	g := new(errgroup.Group)
	g.SetLimit(s.config.Concurrency)

	for i, key := range keys {
		i, key := i, key
		ref := app.Documents[key]
		g.Go(func() error {
			outcomes[i] = outcome{key: key, doc: s.extractOne(ctx, key, ref)}
			return nil
		})
	}
	_ = g.Wait()

	result := consolidate(outcomes)
	if err := s.store.SaveExtraction(ctx, app.ApplicationID, app.RunID, result.Content); err != nil {
		return nil, fmt.Errorf("save extraction: %w", err)
	}

	s.logger.Info("extraction completed", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"runId":         app.RunID,
		"successful":    result.Successful,
		"failed":        result.Failed,
		"total":         result.Total,
	})
	return result, nil
}

// extractOne never fails. In-flight calls outlive cancellation of ctx and are
// bounded by the per-call timeout instead.
func (s *Stage) extractOne(ctx context.Context, key, ref string) (doc models.ExtractedDocument) {
	callCtx := context.WithoutCancel(ctx)
	if s.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, s.config.CallTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			doc = failure(errors.NewExtractionError(key, fmt.Errorf("panic: %v", r)))
		}
	}()

	extracted, err := s.extractor.Extract(callCtx, ref)
	if err == nil && extracted == nil {
		err = fmt.Errorf("extractor returned no content")
	}
	if err != nil {
		var extErr *errors.ExtractionError
		if !errors.As(err, &extErr) {
			extErr = errors.NewExtractionError(key, err)
		}
		if extErr.DocumentKey == "" {
			extErr.DocumentKey = key
		}
		s.logger.Warn("document extraction failed", map[string]interface{}{
			"documentKey": key,
			"code":        extErr.Code,
			"error":       extErr.Err,
		})
		return failure(extErr)
	}

	out := extracted.Clone()
	out.Status = models.ExtractionSucceeded
	out.Error = nil
	return out
}

func failure(err *errors.ExtractionError) models.ExtractedDocument {
	return models.ExtractedDocument{
		Status: models.ExtractionFailed,
		Error:  &models.ExtractionFailure{Code: err.Code, Message: err.Error()},
	}
}

func consolidate(outcomes []outcome) *Result {
	r := &Result{Content: make(map[string]models.ExtractedDocument, len(outcomes)), Total: len(outcomes)}
	for _, o := range outcomes {
		r.Content[o.key] = o.doc
		if o.doc.Succeeded() {
			r.Successful++
			metrics.DocumentExtractions.WithLabelValues(metrics.OutcomeSucceeded).Inc()
		} else {
			r.Failed++
			metrics.DocumentExtractions.WithLabelValues(metrics.OutcomeFailed).Inc()
		}
	}
	return r
}
