// internal/workers/pipeline/start-pipeline/models.go
package startpipeline

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	RunID         string `json:"runId"`
	Status        string `json:"pipelineStatus"`
	FinalDecision string `json:"finalDecision,omitempty"`
	Report        string `json:"reportLocator,omitempty"`
}

const inputSchema = `{
  "type": "object",
  "required": ["applicationId"],
  "properties": {
    "applicationId": {"type": "string", "minLength": 1}
  }
}`
