// internal/models/extraction.go
package models

// ExtractionStatus tags a per-document extraction outcome.
type ExtractionStatus string

const (
	ExtractionSucceeded ExtractionStatus = "SUCCEEDED"
	ExtractionFailed    ExtractionStatus = "FAILED"
)

// ExtractedDocument is either extracted content or a failure marker for one document key.
type ExtractedDocument struct {
	Status ExtractionStatus   `json:"status"`
	Text   string             `json:"text,omitempty"`
	Fields map[string]string  `json:"fields,omitempty"`
	Error  *ExtractionFailure `json:"error,omitempty"`
}

// ExtractionFailure records why a document could not be extracted.
type ExtractionFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Succeeded reports whether the document carries usable content.
func (d ExtractedDocument) Succeeded() bool {
	return d.Status == ExtractionSucceeded
}

func (d ExtractedDocument) Clone() ExtractedDocument {
	out := d
	if d.Fields != nil {
		out.Fields = make(map[string]string, len(d.Fields))
		for k, v := range d.Fields {
			out.Fields[k] = v
		}
	}
	if d.Error != nil {
		e := *d.Error
		out.Error = &e
	}
	return out
}
