package extraction

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/models"
	"admissions-workers/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	fail     map[string]error
	delay    time.Duration
	inFlight int32
	maxSeen  int32
	calls    int32
}

func (f *fakeExtractor) Extract(ctx context.Context, ref string) (*models.ExtractedDocument, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, errors.NewExtractionError("", ctx.Err())
		}
	}
	if err, ok := f.fail[ref]; ok {
		return nil, err
	}
	return &models.ExtractedDocument{Status: models.ExtractionSucceeded, Text: "text of " + ref}, nil
}

type countingWriter struct {
	mu    sync.Mutex
	saves int
	saved map[string]models.ExtractedDocument
	err   error
}

func (w *countingWriter) SaveExtraction(_ context.Context, _, _ string, content map[string]models.ExtractedDocument) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saves++
	w.saved = content
	return w.err
}

func newApp(n int) *models.Application {
	docs := make(map[string]string, n)
	for i := 0; i < n; i++ {
		docs[fmt.Sprintf("doc-%02d", i)] = fmt.Sprintf("s3://docs/app/doc-%02d.pdf", i)
	}
	return &models.Application{ApplicationID: "app", RunID: "run-1", Documents: docs}
}

func TestRun_PartialFailureKeepsEverySlot(t *testing.T) {
	app := newApp(6)
	ex := &fakeExtractor{fail: map[string]error{
		"s3://docs/app/doc-03.pdf": errors.NewExtractionError("", fmt.Errorf("unsupported format")),
	}}
	w := &countingWriter{}
	stage := NewStage(ex, w, Config{Concurrency: 3, CallTimeout: time.Second}, logger.NewTestLogger(t))

	res, err := stage.Run(context.Background(), app)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Total)
	assert.Equal(t, 5, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, w.saves)
	assert.Len(t, w.saved, 6)

	for key := range app.Documents {
		_, ok := w.saved[key]
		assert.True(t, ok, "missing slot for %s", key)
	}
	failed := w.saved["doc-03"]
	assert.Equal(t, models.ExtractionFailed, failed.Status)
	assert.Equal(t, errors.ExtractionCodeFailed, failed.Error.Code)
	assert.Contains(t, failed.Error.Message, "doc-03")
	assert.Equal(t, "text of s3://docs/app/doc-00.pdf", w.saved["doc-00"].Text)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	ex := &fakeExtractor{delay: 20 * time.Millisecond}
	stage := NewStage(ex, &countingWriter{}, Config{Concurrency: 2, CallTimeout: time.Second}, logger.NewNoOpLogger())

	_, err := stage.Run(context.Background(), newApp(8))
	require.NoError(t, err)
	assert.Equal(t, int32(8), atomic.LoadInt32(&ex.calls))
	assert.LessOrEqual(t, atomic.LoadInt32(&ex.maxSeen), int32(2))
}

func TestRun_PerCallTimeoutBecomesMarker(t *testing.T) {
	ex := &fakeExtractor{delay: time.Second}
	w := &countingWriter{}
	stage := NewStage(ex, w, Config{Concurrency: 4, CallTimeout: 10 * time.Millisecond}, logger.NewNoOpLogger())

	res, err := stage.Run(context.Background(), newApp(2))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	for _, doc := range w.saved {
		assert.Equal(t, errors.ExtractionCodeTimeout, doc.Error.Code)
	}
}

func TestRun_CallerCancellationDoesNotAbortInFlightCalls(t *testing.T) {
	ex := &fakeExtractor{delay: 30 * time.Millisecond}
	w := &countingWriter{}
	stage := NewStage(ex, w, Config{Concurrency: 4, CallTimeout: time.Second}, logger.NewNoOpLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	res, err := stage.Run(ctx, newApp(3))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Successful)
}

func TestRun_PanicIsContained(t *testing.T) {
	stage := NewStage(panicExtractor{}, &countingWriter{}, Config{Concurrency: 1}, logger.NewNoOpLogger())
	res, err := stage.Run(context.Background(), newApp(1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
}

type panicExtractor struct{}

func (panicExtractor) Extract(context.Context, string) (*models.ExtractedDocument, error) {
	panic("decoder crashed")
}

func TestRun_PersistenceFailureIsReturned(t *testing.T) {
	w := &countingWriter{err: errors.ErrStaleRun}
	stage := NewStage(&fakeExtractor{}, w, Config{Concurrency: 2}, logger.NewNoOpLogger())

	_, err := stage.Run(context.Background(), newApp(2))
	assert.ErrorIs(t, err, errors.ErrStaleRun)
}

func TestRun_NoDocuments(t *testing.T) {
	mem := store.NewMemoryApplicationStore()
	ctx := context.Background()
	require.NoError(t, mem.Create(ctx, &models.Application{ApplicationID: "empty"}))
	app, err := mem.TransitionStatus(ctx, "empty", []models.Status{models.StatusNew},
		models.StatusUpdate{Status: models.StatusExtracting, RunID: "r"})
	require.NoError(t, err)

	res, err := NewStage(&fakeExtractor{}, mem, Config{Concurrency: 2}, logger.NewNoOpLogger()).Run(ctx, app)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)

	got, _ := mem.Get(ctx, "empty")
	assert.NotNil(t, got.ExtractedContent)
	assert.Empty(t, got.ExtractedContent)
}
