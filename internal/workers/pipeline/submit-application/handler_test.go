// internal/workers/pipeline/submit-application/handler_test.go
package submitapplication

import (
	"context"
	"testing"
	"time"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/models"
	"admissions-workers/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeSubmitter struct {
	apps *store.MemoryApplicationStore
}

func (s storeSubmitter) Submit(ctx context.Context, app *models.Application) (*models.StatusView, error) {
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, err
	}
	return app.View(), nil
}

func createTestInput() *Input {
	return &Input{
		ApplicationID: "app-001",
		Documents: map[string]string{
			"transcript": "s3://admissions-documents/app-001/transcript.pdf",
			"sop":        "s3://admissions-documents/app-001/sop.pdf",
		},
		Profile: map[string]interface{}{"program": "MS Computer Science"},
	}
}

func TestHandler_Execute_Success(t *testing.T) {
	apps := store.NewMemoryApplicationStore()
	h := NewHandler(LoadConfig(), storeSubmitter{apps}, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, "app-001", out.ApplicationID)
	assert.Equal(t, string(models.StatusNew), out.Status)
	_, err = time.Parse(time.RFC3339, out.SubmittedAt)
	assert.NoError(t, err)

	stored, err := apps.Get(context.Background(), "app-001")
	require.NoError(t, err)
	assert.Len(t, stored.Documents, 2)
	assert.Equal(t, "MS Computer Science", stored.Profile["program"])
}

func TestHandler_Execute_Duplicate(t *testing.T) {
	apps := store.NewMemoryApplicationStore()
	h := NewHandler(LoadConfig(), storeSubmitter{apps}, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	_, err = h.Execute(context.Background(), createTestInput())
	assert.True(t, errors.Is(err, errors.ErrDuplicateApplication))
	assert.Equal(t, errors.ErrCodeDuplicateApplication, errors.ToStandardError(err).Code)
}

func TestHandler_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		ok     bool
	}{
		{"valid", func(*Input) {}, true},
		{"generated id", func(in *Input) { in.ApplicationID = "" }, true},
		{"no documents", func(in *Input) { in.Documents = nil }, false},
		{"empty documents", func(in *Input) { in.Documents = map[string]string{} }, false},
		{"not an object reference", func(in *Input) { in.Documents["sop"] = "https://example.com/sop.pdf" }, false},
		{"bad id", func(in *Input) { in.ApplicationID = "a b/c" }, false},
		{"foreign bucket", func(in *Input) { in.Documents["sop"] = "s3://elsewhere/sop.pdf" }, false},
	}

	cfg := LoadConfig()
	cfg.AllowedBuckets = []string{"admissions-documents"}
	h := NewHandler(cfg, storeSubmitter{store.NewMemoryApplicationStore()}, logger.NewNoOpLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := createTestInput()
			tt.mutate(in)
			err := h.Validate(in)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeValidationFailed, errors.ToStandardError(err).Code)
		})
	}
}
