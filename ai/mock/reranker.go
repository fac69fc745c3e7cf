package mock

import (
	"context"
	"sync/atomic"

	"github.com/poiesic/ragrouter/core"
)

// MockReranker is a test double for ai.Reranker.
type MockReranker struct {
	// RerankFunc is called by Rerank if set.
	// If nil, the first topN candidates are returned in input order.
	RerankFunc func(ctx context.Context, query string, candidates []core.RetrievedChunk, topN int) ([]core.RetrievedChunk, error)

	callCount atomic.Int64
}

// NewMockReranker creates a pass-through reranker.
func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

// Rerank returns injected results or a truncated copy of candidates.
func (m *MockReranker) Rerank(ctx context.Context, query string, candidates []core.RetrievedChunk, topN int) ([]core.RetrievedChunk, error) {
	m.callCount.Add(1)

	if m.RerankFunc != nil {
		return m.RerankFunc(ctx, query, candidates, topN)
	}
	n := min(topN, len(candidates))
	if n < 0 {
		n = 0
	}
	out := make([]core.RetrievedChunk, n)
	copy(out, candidates[:n])
	return out, nil
}

// CallCount returns the number of Rerank calls.
func (m *MockReranker) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (m *MockReranker) Reset() {
	m.callCount.Store(0)
	m.RerankFunc = nil
}
