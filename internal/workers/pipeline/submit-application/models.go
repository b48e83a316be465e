// internal/workers/pipeline/submit-application/models.go
package submitapplication

type Input struct {
	ApplicationID string                 `json:"applicationId,omitempty"`
	Documents     map[string]string      `json:"documents"`
	Profile       map[string]interface{} `json:"profile,omitempty"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"pipelineStatus"`
	SubmittedAt   string `json:"submittedAt"` // ISO 8601
}

const inputSchema = `{
  "type": "object",
  "required": ["documents"],
  "properties": {
    "applicationId": {"type": "string", "pattern": "^[A-Za-z0-9._-]{1,128}$"},
    "documents": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {"type": "string", "pattern": "^s3://[^/]+/.+"}
    },
    "profile": {"type": "object"}
  }
}`
