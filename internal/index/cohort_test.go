package index

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"admissions-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeES is a tiny in-memory stand-in for the index and search endpoints.
type fakeES struct {
	mu   sync.Mutex
	docs map[string]Entry
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.Contains(r.URL.Path, "/_doc/"):
		var e Entry
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &e)
		f.docs[r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]] = e
		_, _ = w.Write([]byte(`{"result":"updated"}`))
	case strings.HasSuffix(r.URL.Path, "/_search"):
		var hits []map[string]interface{}
		for _, e := range f.docs {
			if e.Scored {
				hits = append(hits, map[string]interface{}{"_source": map[string]float64{"composite_score": e.CompositeScore}})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"hits": map[string]interface{}{"hits": hits}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestIndex(t *testing.T, h http.Handler) *CohortIndex {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewCohortIndex(es, "admissions-evaluations")
}

func TestCohortIndex_CompareIsIdempotent(t *testing.T) {
	fake := &fakeES{docs: map[string]Entry{
		"b": {ApplicationID: "b", CompositeScore: 60, Scored: true},
		"c": {ApplicationID: "c", CompositeScore: 90, Scored: true},
		"d": {ApplicationID: "d", Scored: false},
	}}
	idx := newTestIndex(t, fake)

	entry := EntryFor(&models.EvaluationResult{
		ApplicationID:  "a",
		CompositeScore: 76,
		FinalDecision:  models.DecisionAccept,
		Level4:         &models.Level4Result{CompositeScore: 76},
	})

	for i := 0; i < 2; i++ {
		stats, err := idx.Compare(context.Background(), entry)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.CohortSize)
		assert.InDelta(t, 75.33, stats.Mean, 0.001)
		assert.InDelta(t, 66.67, stats.Percentile, 0.001)
	}
	assert.Len(t, fake.docs, 4)
}

func TestCohortIndex_SearchError(t *testing.T) {
	idx := newTestIndex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	_, err := idx.Scores(context.Background())
	assert.Error(t, err)
}

func TestComputeStats(t *testing.T) {
	assert.Nil(t, ComputeStats(nil, 50))

	s := ComputeStats([]float64{50, 70, 70, 90}, 70)
	assert.Equal(t, 4, s.CohortSize)
	assert.Equal(t, 70.0, s.Mean)
	assert.Equal(t, 75.0, s.Percentile)
}
