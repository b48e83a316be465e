// Package index keeps a searchable summary of every scored evaluation so a
// report can place an applicant within the cohort.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"admissions-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

const maxCohort = 10000

// Entry is the indexed summary of one application's latest evaluation.
type Entry struct {
	ApplicationID         string          `json:"application_id"`
	CompositeScore        float64         `json:"composite_score"`
	FinalDecision         models.Decision `json:"final_decision"`
	FundingRecommendation string          `json:"funding_recommendation"`
	Scored                bool            `json:"scored"`
	EvaluatedAt           time.Time       `json:"evaluated_at"`
}

// EntryFor summarizes result.
func EntryFor(result *models.EvaluationResult) Entry {
	return Entry{
		ApplicationID:         result.ApplicationID,
		CompositeScore:        result.CompositeScore,
		FinalDecision:         result.FinalDecision,
		FundingRecommendation: result.FundingRecommendation,
		Scored:                result.Scored(),
		EvaluatedAt:           result.EvaluatedAt,
	}
}

// Stats places one score within the scored cohort.
type Stats struct {
	CohortSize int     `json:"cohort_size"`
	Mean       float64 `json:"mean"`
	// Percentile is the share of the cohort scoring at or below the applicant, 0-100.
	Percentile float64 `json:"percentile"`
}

type CohortIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewCohortIndex(es *elasticsearch.Client, index string) *CohortIndex {
	return &CohortIndex{es: es, index: index}
}

// Upsert indexes entry under its application id, so repeated runs replace the document.
func (c *CohortIndex) Upsert(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cohort entry: %w", err)
	}
	res, err := c.es.Index(c.index, bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(entry.ApplicationID),
		c.es.Index.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("index cohort entry: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index cohort entry: %s", res.Status())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source Entry `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Scores returns the composite scores of every scored application.
func (c *CohortIndex) Scores(ctx context.Context) ([]float64, error) {
	query := map[string]interface{}{
		"_source": []string{"composite_score"},
		"query": map[string]interface{}{
			"term": map[string]interface{}{"scored": true},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithSize(maxCohort),
	)
	if err != nil {
		return nil, fmt.Errorf("search cohort: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("search cohort: %s: %s", res.Status(), msg)
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode cohort search: %w", err)
	}
	scores := make([]float64, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		scores = append(scores, h.Source.CompositeScore)
	}
	return scores, nil
}

// Compare indexes entry and returns its standing among the scored cohort.
func (c *CohortIndex) Compare(ctx context.Context, entry Entry) (*Stats, error) {
	if err := c.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	scores, err := c.Scores(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeStats(scores, entry.CompositeScore), nil
}

// ComputeStats returns nil for an empty cohort.
func ComputeStats(scores []float64, score float64) *Stats {
	if len(scores) == 0 {
		return nil
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	atOrBelow := sort.Search(len(sorted), func(i int) bool { return sorted[i] > score })

	return &Stats{
		CohortSize: len(sorted),
		Mean:       round2(sum / float64(len(sorted))),
		Percentile: round2(100 * float64(atOrBelow) / float64(len(sorted))),
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
