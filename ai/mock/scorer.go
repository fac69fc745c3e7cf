package mock

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/poiesic/ragrouter/ai"
)

// MockIntentScorer is a test double for ai.IntentScorer.
type MockIntentScorer struct {
	// ScoreIntentsFunc is called by ScoreIntents if set.
	ScoreIntentsFunc func(ctx context.Context, query string, candidates []ai.IntentCandidate) ([]ai.IntentScore, error)

	// Scores maps candidate ids to fixed scores. Used when ScoreIntentsFunc is nil
	// and the map is non-empty; unlisted candidates score 0.
	Scores map[string]float64

	callCount atomic.Int64
}

// NewMockIntentScorer creates a scorer with keyword-overlap default behavior.
func NewMockIntentScorer() *MockIntentScorer {
	return &MockIntentScorer{}
}

// ScoreIntents returns injected or fixed scores. By default a candidate scores 0.9 when
// the query contains one of its examples or its last path segment, and 0.1 otherwise.
func (m *MockIntentScorer) ScoreIntents(ctx context.Context, query string, candidates []ai.IntentCandidate) ([]ai.IntentScore, error) {
	m.callCount.Add(1)

	if m.ScoreIntentsFunc != nil {
		return m.ScoreIntentsFunc(ctx, query, candidates)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := make([]ai.IntentScore, 0, len(candidates))
	for _, c := range candidates {
		if len(m.Scores) > 0 {
			scores = append(scores, ai.IntentScore{ID: c.ID, Score: m.Scores[c.ID]})
			continue
		}
		scores = append(scores, ai.IntentScore{ID: c.ID, Score: overlapScore(query, c)})
	}
	return scores, nil
}

// CallCount returns the number of ScoreIntents calls.
func (m *MockIntentScorer) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (m *MockIntentScorer) Reset() {
	m.callCount.Store(0)
	m.ScoreIntentsFunc = nil
	m.Scores = nil
}

func overlapScore(query string, c ai.IntentCandidate) float64 {
	for _, ex := range c.Examples {
		if ex != "" && strings.Contains(query, ex) {
			return 0.9
		}
	}
	segments := strings.Split(c.Path, ">")
	last := strings.TrimSpace(segments[len(segments)-1])
	if last != "" && strings.Contains(query, last) {
		return 0.9
	}
	return 0.1
}
