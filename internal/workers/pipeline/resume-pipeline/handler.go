// internal/workers/pipeline/resume-pipeline/handler.go
package resumepipeline

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
	TaskType = "admissions-resume-pipeline"
)

var schema = validation.MustCompile(TaskType, []byte(inputSchema))

type Pipeline interface {
	ResumeFrom(ctx context.Context, applicationID string, stage models.Stage) (*orchestrator.RunResult, error)
	ResumeFromAsync(ctx context.Context, applicationID string, stage models.Stage) (string, error)
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

	var input Input
	res := schema.ValidateBytes([]byte(job.Variables))
	if !res.Valid {
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
	h.completeJob(client, job, output)
}

// Execute re-enters the pipeline at input.Stage.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	stage, err := models.ParseStage(input.Stage)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	if !h.config.WaitForCompletion {
		runID, err := h.pipeline.ResumeFromAsync(ctx, input.ApplicationID, stage)
		if err != nil {
			return nil, err
		}
		return &Output{
			ApplicationID: input.ApplicationID,
			RunID:         runID,
			Stage:         string(stage),
			Status:        string(stage.RunningStatus()),
		}, nil
	}

	res, err := h.pipeline.ResumeFrom(ctx, input.ApplicationID, stage)
	if err != nil {
		return nil, err
	}
	return &Output{
		ApplicationID: res.ApplicationID,
		RunID:         res.RunID,
		Stage:         string(stage),
		Status:        string(res.Status),
		FinalDecision: string(res.Decision),
		Report:        res.Report,
	}, nil
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
		"jobKey": job.Key,
		"stage":  output.Stage,
	})
}
