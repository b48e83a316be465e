// internal/workers/pipeline/submit-application/handler.go
package submitapplication

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"admissions-workers/internal/common/aws"
	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/metrics"
	"admissions-workers/internal/common/validation"
	"admissions-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "admissions-submit-application"
)

// Schema validates submission payloads. The HTTP API shares it.
var Schema = validation.MustCompile(TaskType, []byte(inputSchema))

type Submitter interface {
	Submit(ctx context.Context, app *models.Application) (*models.StatusView, error)
}

type Handler struct {
	config     *Config
	submitter  Submitter
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, submitter Submitter, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		submitter:  submitter,
		logger:     l,
		errHandler: errors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, errors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}
	h.completeJob(client, job, output)
}

// Execute validates the submission and records it in NEW.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := h.Validate(input); err != nil {
		return nil, err
	}

	view, err := h.submitter.Submit(ctx, &models.Application{
		ApplicationID: input.ApplicationID,
		Documents:     input.Documents,
		Profile:       input.Profile,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("application submitted", map[string]interface{}{
		"applicationId": view.ApplicationID,
		"documents":     len(input.Documents),
	})
	return &Output{
		ApplicationID: view.ApplicationID,
		Status:        string(view.Status),
		SubmittedAt:   view.LastUpdated.UTC().Format(time.RFC3339),
	}, nil
}

// Validate checks the payload shape and that every document lives in an
// allowed bucket.
func (h *Handler) Validate(input *Input) error {
	if res := Schema.ValidateInput(input); !res.Valid {
		return errors.NewValidationError(res.Error())
	}
	if len(h.config.AllowedBuckets) == 0 {
		return nil
	}
	for key, ref := range input.Documents {
		bucket, _, err := aws.ParseReference(ref)
		if err != nil {
			return errors.NewValidationError(fmt.Sprintf("documents.%s: %v", key, err))
		}
		if !contains(h.config.AllowedBuckets, bucket) {
			return errors.NewValidationError(fmt.Sprintf("documents.%s: bucket %q is not accepted", key, bucket))
		}
	}
	return nil
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.ToStandardError(err).Code)).Inc()
	h.errHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey":        job.Key,
		"applicationId": output.ApplicationID,
	})
}
