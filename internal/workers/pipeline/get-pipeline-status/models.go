// internal/workers/pipeline/get-pipeline-status/models.go
package getpipelinestatus

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"pipelineStatus"`
	FailedStage   string `json:"failedStage,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
	RunID         string `json:"runId,omitempty"`
	Report        string `json:"reportLocator,omitempty"`
	InProgress    bool   `json:"inProgress"`
	LastUpdated   string `json:"lastUpdated"` // ISO 8601
}

const inputSchema = `{
  "type": "object",
  "required": ["applicationId"],
  "properties": {
    "applicationId": {"type": "string", "minLength": 1}
  }
}`
