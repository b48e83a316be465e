// internal/workers/pipeline/resume-pipeline/models.go
package resumepipeline

type Input struct {
	ApplicationID string `json:"applicationId"`
	Stage         string `json:"stage"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	RunID         string `json:"runId"`
	Stage         string `json:"resumedStage"`
	Status        string `json:"pipelineStatus"`
	FinalDecision string `json:"finalDecision,omitempty"`
	Report        string `json:"reportLocator,omitempty"`
}

const inputSchema = `{
  "type": "object",
  "required": ["applicationId", "stage"],
  "properties": {
    "applicationId": {"type": "string", "minLength": 1},
    "stage": {"type": "string", "minLength": 1}
  }
}`
