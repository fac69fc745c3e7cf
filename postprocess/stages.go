// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postprocess

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/poiesic/ragrouter/ai"
	"github.com/poiesic/ragrouter/core"
)

// Default stage orders and tuning
const (
	DedupOrder         = 1
	MarginFilterOrder  = 5
	RerankLimiterOrder = 8
	RerankOrder        = 10

	DefaultMarginRatio           = 0.75
	DefaultRerankLimitMultiplier = 2
	DefaultRerankTimeout         = 10 * time.Second
)

// Dedup merges channel results by chunk identity. Results are consumed in channel
// priority order and, within a priority, in the order the orchestrator returned
// them. A strictly higher score replaces the kept instance in place; the intent
// that first produced the chunk stays attached to it.
type Dedup struct{}

var _ Processor = (*Dedup)(nil)

func NewDedup() *Dedup { return &Dedup{} }

func (d *Dedup) Name() string                        { return "dedup" }
func (d *Dedup) Order() int                          { return DedupOrder }
func (d *Dedup) Enabled(sc *core.SearchContext) bool { return true }

func (d *Dedup) Process(ctx context.Context, chunks []core.RetrievedChunk, results []core.SearchChannelResult, sc *core.SearchContext) ([]core.RetrievedChunk, error) {
	ordered := make([]core.SearchChannelResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Channel.Priority() < ordered[j].Channel.Priority()
	})

	out := make([]core.RetrievedChunk, 0, len(chunks))
	index := make(map[string]int)
	add := func(c core.RetrievedChunk) {
		key := c.Key()
		if i, ok := index[key]; ok {
			if c.Score > out[i].Score {
				if c.IntentCode == "" {
					c.IntentCode, c.Collection = out[i].IntentCode, out[i].Collection
				}
				out[i] = c
			}
			return
		}
		index[key] = len(out)
		out = append(out, c)
	}

	for _, c := range chunks {
		add(c)
	}
	for _, r := range ordered {
		if r.Err != nil {
			continue
		}
		for _, c := range r.Chunks {
			add(c)
		}
	}
	return out, nil
}

// MarginFilter drops chunks scoring below ratio × the top score.
type MarginFilter struct {
	ratio float64
	order int
}

var _ Processor = (*MarginFilter)(nil)

// NewMarginFilter creates a margin filter running at order.
func NewMarginFilter(ratio float64, order int) (*MarginFilter, error) {
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("margin ratio must be in (0,1], got %v", ratio)
	}
	return &MarginFilter{ratio: ratio, order: order}, nil
}

func (m *MarginFilter) Name() string { return "margin-filter" }
func (m *MarginFilter) Order() int   { return m.order }

func (m *MarginFilter) Enabled(sc *core.SearchContext) bool {
	return sc != nil && sc.Flags.MarginFilter
}

func (m *MarginFilter) Process(ctx context.Context, chunks []core.RetrievedChunk, results []core.SearchChannelResult, sc *core.SearchContext) ([]core.RetrievedChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	top := chunks[0].Score
	for _, c := range chunks[1:] {
		top = max(top, c.Score)
	}
	if top <= 0 {
		return chunks, nil
	}
	floor := top * m.ratio
	out := make([]core.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Score >= floor {
			out = append(out, c)
		}
	}
	return out, nil
}

// RerankLimiter bounds the rerank input to the best topK × multiplier chunks by
// score. Kept chunks stay in their incoming order.
type RerankLimiter struct {
	multiplier int
}

var _ Processor = (*RerankLimiter)(nil)

// NewRerankLimiter creates a limiter keeping topK × multiplier chunks.
func NewRerankLimiter(multiplier int) (*RerankLimiter, error) {
	if multiplier < 1 {
		return nil, fmt.Errorf("rerank limit multiplier must be positive, got %d", multiplier)
	}
	return &RerankLimiter{multiplier: multiplier}, nil
}

func (l *RerankLimiter) Name() string { return "rerank-limiter" }
func (l *RerankLimiter) Order() int   { return RerankLimiterOrder }

func (l *RerankLimiter) Enabled(sc *core.SearchContext) bool {
	return sc != nil && sc.Flags.RerankLimit
}

func (l *RerankLimiter) Process(ctx context.Context, chunks []core.RetrievedChunk, results []core.SearchChannelResult, sc *core.SearchContext) ([]core.RetrievedChunk, error) {
	limit := sc.TopK * l.multiplier
	if limit <= 0 || len(chunks) <= limit {
		return chunks, nil
	}

	byScore := make([]int, len(chunks))
	for i := range byScore {
		byScore[i] = i
	}
	sort.SliceStable(byScore, func(i, j int) bool {
		return chunks[byScore[i]].Score > chunks[byScore[j]].Score
	})
	keep := byScore[:limit]
	sort.Ints(keep)

	out := make([]core.RetrievedChunk, len(keep))
	for i, idx := range keep {
		out[i] = chunks[idx]
	}
	return out, nil
}

// Rerank asks the reranker for the final order. On failure or timeout the
// incoming order is kept, truncated to topK, and the request records
// RerankDegraded.
type Rerank struct {
	reranker ai.Reranker
	timeout  time.Duration
	logger   *slog.Logger
}

var _ Processor = (*Rerank)(nil)

// RerankOption configures a Rerank stage.
type RerankOption func(*Rerank) error

// WithRerankTimeout bounds each rerank call.
func WithRerankTimeout(timeout time.Duration) RerankOption {
	return func(r *Rerank) error {
		if timeout <= 0 {
			return fmt.Errorf("rerank timeout must be positive, got %v", timeout)
		}
		r.timeout = timeout
		return nil
	}
}

// NewRerank creates the final rerank stage.
func NewRerank(reranker ai.Reranker, opts ...RerankOption) (*Rerank, error) {
	if reranker == nil {
		return nil, ErrRerankerRequired
	}
	r := &Rerank{
		reranker: reranker,
		timeout:  DefaultRerankTimeout,
		logger:   slog.Default().With("component", "rerank"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Rerank) Name() string                        { return "rerank" }
func (r *Rerank) Order() int                          { return RerankOrder }
func (r *Rerank) Enabled(sc *core.SearchContext) bool { return true }

func (r *Rerank) Process(ctx context.Context, chunks []core.RetrievedChunk, results []core.SearchChannelResult, sc *core.SearchContext) ([]core.RetrievedChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	topK := min(sc.TopK, len(chunks))
	if topK <= 0 {
		return []core.RetrievedChunk{}, nil
	}

	rerankCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ranked, err := r.reranker.Rerank(rerankCtx, sc.Question, chunks, topK)
	if err != nil {
		r.logger.Warn("rerank degraded, keeping dedup order", "err", err)
		sc.Record(core.RerankDegraded, r.Name(), err)
		return truncate(chunks, topK), nil
	}
	return sanitize(ranked, chunks, topK), nil
}

// sanitize keeps only chunks that were candidates, each once, at most topK.
func sanitize(ranked, candidates []core.RetrievedChunk, topK int) []core.RetrievedChunk {
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.Key()] = true
	}
	seen := make(map[string]bool, len(ranked))
	out := make([]core.RetrievedChunk, 0, min(topK, len(ranked)))
	for _, c := range ranked {
		if len(out) == topK {
			break
		}
		key := c.Key()
		if !known[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func truncate(chunks []core.RetrievedChunk, n int) []core.RetrievedChunk {
	out := make([]core.RetrievedChunk, min(n, len(chunks)))
	copy(out, chunks)
	return out
}
