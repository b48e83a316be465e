// internal/workers/pipeline/start-pipeline/handler.go
package startpipeline

import (
	"context"
	"encoding/json"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/metrics"
	"admissions-workers/internal/common/validation"
	"admissions-workers/internal/models"
	"admissions-workers/internal/pipeline/orchestrator"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "admissions-start-pipeline"
)

var schema = validation.MustCompile(TaskType, []byte(inputSchema))

type Pipeline interface {
	Start(ctx context.Context, applicationID string) (*orchestrator.RunResult, error)
	StartAsync(ctx context.Context, applicationID string) (string, error)
}

type Handler struct {
	config     *Config
	pipeline   Pipeline
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, pipeline Pipeline, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		pipeline:   pipeline,
		logger:     l,
		errHandler: errors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx := context.Background()
	if !h.config.WaitForCompletion && h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	input, err := parseInput(job.Variables)
	if err == nil {
		var output *Output
		if output, err = h.Execute(ctx, input); err == nil {
			h.completeJob(client, job, output)
			return
		}
	}

	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.ToStandardError(err).Code)).Inc()
	h.errHandler.HandleJobError(ctx, client, job, err)
}

func parseInput(variables string) (*Input, error) {
	if res := schema.ValidateBytes([]byte(variables)); !res.Valid {
		return nil, errors.NewValidationError(res.Error())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	return &input, nil
}

// Execute claims the application and, when configured, waits for the run.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if !h.config.WaitForCompletion {
		runID, err := h.pipeline.StartAsync(ctx, input.ApplicationID)
		if err != nil {
			return nil, err
		}
		return &Output{
			ApplicationID: input.ApplicationID,
			RunID:         runID,
			Status:        string(models.StatusExtracting),
		}, nil
	}

	res, err := h.pipeline.Start(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}
	return &Output{
		ApplicationID: res.ApplicationID,
		RunID:         res.RunID,
		Status:        string(res.Status),
		FinalDecision: string(res.Decision),
		Report:        res.Report,
	}, nil
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
		"runId":         output.RunID,
	})
}
