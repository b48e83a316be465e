// internal/workers/pipeline/get-pipeline-status/handler.go
package getpipelinestatus

import (
	"context"
	"encoding/json"
	"time"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/metrics"
	"admissions-workers/internal/common/validation"
	"admissions-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "admissions-get-pipeline-status"
)

var schema = validation.MustCompile(TaskType, []byte(inputSchema))

type StatusReader interface {
	GetStatus(ctx context.Context, applicationID string) (*models.StatusView, error)
}

type Handler struct {
	config     *Config
	reader     StatusReader
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, reader StatusReader, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		reader:     reader,
		logger:     l,
		errHandler: errors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if res := schema.ValidateBytes([]byte(job.Variables)); !res.Valid {
		h.fail(ctx, client, job, errors.NewValidationError(res.Error()))
		return
	}
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, errors.NewValidationError(err.Error()))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

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
		h.logger.Error("failed to complete job", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

// Execute is read-only and safe to repeat.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	view, err := h.reader.GetStatus(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}
	return &Output{
		ApplicationID: view.ApplicationID,
		Status:        string(view.Status),
		FailedStage:   string(view.FailedStage),
		FailureReason: view.FailureReason,
		RunID:         view.RunID,
		Report:        view.Report,
		InProgress:    view.Status.IsInProgress(),
		LastUpdated:   view.LastUpdated.UTC().Format(time.RFC3339),
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.ToStandardError(err).Code)).Inc()
	h.errHandler.HandleJobError(ctx, client, job, err)
}
