package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passJudgment = `{
  "level1": {"status": "PASS", "checklist": {"transcript": true}},
  "level2": {"gpa_score": 90, "gre_score": 80, "coursework_score": 70},
  "level3": {"sop_score": 70, "lor_score": 75, "research_score": 60, "strengths": ["research"]},
  "level4_inputs": {"program_fit_score": 70, "potential_score": 70}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "secret", Timeout: timeout}, logger.NewTestLogger(t))
}

func oracleReason(t *testing.T, err error) string {
	t.Helper()
	var oe *errors.OracleError
	require.True(t, errors.As(err, &oe), "expected OracleError, got %v", err)
	return oe.Reason
}

func TestEvaluate_Success(t *testing.T) {
	app := &models.Application{
		ApplicationID: "app-1",
		Status:        models.StatusEvaluating,
		RunID:         "run-1",
		Documents:     map[string]string{"transcript": "s3://docs/t.pdf"},
		ExtractedContent: map[string]models.ExtractedDocument{
			"transcript": {Status: models.ExtractionSucceeded, Text: "GPA 3.9"},
		},
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, evaluatePath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		snap := body["application"].(map[string]interface{})
		assert.Equal(t, "app-1", snap["application_id"])
		assert.NotContains(t, snap, "status")
		assert.NotContains(t, snap, "run_id")
		assert.Contains(t, body["prompt"], "Do not fabricate")

		_, _ = w.Write([]byte(passJudgment))
	}, time.Second)

	j, err := c.Evaluate(context.Background(), SnapshotOf(app))
	require.NoError(t, err)
	assert.Equal(t, models.ScreeningPass, j.Level1.Status)
	assert.Equal(t, 80.0, j.Level2.TestScore)
	assert.Equal(t, []string{"research"}, j.Level3.Strengths)
}

func TestEvaluate_FailureReasons(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		reason  string
	}{
		{
			name: "upstream status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			reason: errors.OracleReasonUpstreamStatus,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>oops</html>"))
			},
			reason: errors.OracleReasonMalformedResponse,
		},
		{
			name: "score out of range",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{
				  "level1": {"status": "PASS"},
				  "level2": {"gpa_score": 140, "gre_score": 80, "coursework_score": 70},
				  "level3": {"sop_score": 70, "lor_score": 75, "research_score": 60},
				  "level4_inputs": {"program_fit_score": 70, "potential_score": 70}
				}`))
			},
			reason: errors.OracleReasonMalformedResponse,
		},
		{
			name: "pass without levels",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"level1": {"status": "PASS"}}`))
			},
			reason: errors.OracleReasonMalformedResponse,
		},
		{
			name: "unknown screening status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"level1": {"status": "MAYBE"}}`))
			},
			reason: errors.OracleReasonMalformedResponse,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			reason: errors.OracleReasonTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler, 50*time.Millisecond)
			_, err := c.Evaluate(context.Background(), Snapshot{ApplicationID: "app-1"})
			require.Error(t, err)
			assert.Equal(t, tt.reason, oracleReason(t, err))
		})
	}
}

func TestEvaluate_FailScreeningNeedsNoScores(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"level1": {"status": "FAIL", "processing_notes": "degree not accredited"}}`))
	}, time.Second)

	j, err := c.Evaluate(context.Background(), Snapshot{ApplicationID: "app-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ScreeningFail, j.Level1.Status)
	assert.Equal(t, "degree not accredited", j.Level1.Notes)
}
