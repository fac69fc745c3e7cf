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

package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragrouter/ai"
	"github.com/poiesic/ragrouter/core"
)

// Orchestrator defaults
const (
	DefaultPoolSize             = 64
	DefaultChannelTimeout       = 3 * time.Second
	DefaultMinSearchTopK        = 20
	DefaultSearchTopKMultiplier = 3
)

// Orchestrator fans one request out to every channel and joins the results.
type Orchestrator struct {
	intentDirected Channel
	keyword        Channel
	globalVector   Channel
	embedder       ai.Embedder

	pool             *ants.Pool
	poolSize         int
	channelTimeout   time.Duration
	minSearchTopK    int
	searchMultiplier int
	logger           *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithPoolSize sets the number of concurrent channel invocations across all requests.
// Submissions beyond it fail fast as degraded results.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			return errors.New("pool size must be positive")
		}
		o.poolSize = size
		return nil
	}
}

// WithChannelTimeout sets the deadline of each channel invocation.
func WithChannelTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d <= 0 {
			return errors.New("channel timeout must be positive")
		}
		o.channelTimeout = d
		return nil
	}
}

// WithSearchTopK sets the over-fetch rule: max(minimum, topK*multiplier).
func WithSearchTopK(minimum, multiplier int) Option {
	return func(o *Orchestrator) error {
		if minimum < 1 || multiplier < 1 {
			return errors.New("search topK minimum and multiplier must be positive")
		}
		o.minSearchTopK = minimum
		o.searchMultiplier = multiplier
		return nil
	}
}

// WithQueryEmbedder embeds every question once up front and hands the vector to
// the vector channels.
func WithQueryEmbedder(embedder ai.Embedder) Option {
	return func(o *Orchestrator) error {
		o.embedder = embedder
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator over the three channel kinds.
// Call Release when done to stop the worker pool.
func NewOrchestrator(intentDirected, keyword, globalVector Channel, opts ...Option) (*Orchestrator, error) {
	if intentDirected == nil || keyword == nil || globalVector == nil {
		return nil, ErrChannelRequired
	}
	o := &Orchestrator{
		intentDirected:   intentDirected,
		keyword:          keyword,
		globalVector:     globalVector,
		poolSize:         DefaultPoolSize,
		channelTimeout:   DefaultChannelTimeout,
		minSearchTopK:    DefaultMinSearchTopK,
		searchMultiplier: DefaultSearchTopKMultiplier,
		logger:           slog.Default().With("component", "channel-orchestrator"),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(o.poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create channel pool: %w", err)
	}
	o.pool = pool
	return o, nil
}

// Release stops the worker pool.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// SearchTopK is the per-channel fetch size for a requested topK.
func (o *Orchestrator) SearchTopK(topK int) int {
	return max(o.minSearchTopK, topK*o.searchMultiplier)
}

type invocation struct {
	channel  Channel
	req      Request
	question int
	vector   bool
}

// Run executes the plan for sc: per question, the intent-directed channel once per
// selected intent that can be searched, then keyword and global vector once each.
// SYSTEM and MCP intents without a collection are routed elsewhere and get no
// intent-directed search. Keyword searches start before the shared question
// embedding; the vector channels wait for it. Results come back in plan order, one
// per invocation. Failed invocations carry Err and no chunks and are recorded on
// sc. Only caller cancellation makes Run fail.
func (o *Orchestrator) Run(ctx context.Context, sc *core.SearchContext) ([]core.SearchChannelResult, error) {
	questions := sc.Questions()
	topK := o.SearchTopK(sc.TopK)

	var plan []invocation
	for qi, q := range questions {
		for _, ns := range sc.Intents {
			if !searchable(ns.Node) {
				continue
			}
			plan = append(plan, invocation{o.intentDirected, Request{Question: q, Intent: ns.Node, TopK: topK}, qi, true})
		}
		plan = append(plan,
			invocation{o.keyword, Request{Question: q, TopK: topK}, qi, false},
			invocation{o.globalVector, Request{Question: q, TopK: topK}, qi, true},
		)
	}

	results := make([]core.SearchChannelResult, len(plan))
	var wg sync.WaitGroup
	submit := func(i int) {
		inv := plan[i]
		wg.Add(1)
		submitErr := o.pool.Submit(func() {
			defer wg.Done()
			results[i] = o.invoke(ctx, inv)
		})
		if submitErr != nil {
			wg.Done()
			results[i] = newResult(inv)
			results[i].Err = fmt.Errorf("%w: %v", ErrPoolOverloaded, submitErr)
		}
	}

	for i, inv := range plan {
		if !inv.vector {
			submit(i)
		}
	}
	vectors, err := o.embedQuestions(ctx, questions)
	if err != nil {
		wg.Wait()
		return nil, err
	}
	for i := range plan {
		if !plan[i].vector {
			continue
		}
		if vectors != nil {
			plan[i].req.Vector = vectors[plan[i].question]
		}
		submit(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for _, r := range results {
		if r.Err == nil {
			continue
		}
		kind := core.ChannelDegraded
		if errors.Is(r.Err, ErrMissingCollection) {
			kind = core.ConfigurationError
		}
		o.logger.Warn("channel degraded", "kind", kind, "channel", r.Channel, "intent", r.IntentCode, "err", r.Err)
		sc.Record(kind, sourceLabel(r), r.Err)
	}
	return results, nil
}

// searchable reports whether an intent gets an intent-directed search. KB topics
// always do, so a missing collection surfaces as a configuration error.
func searchable(n *core.IntentNode) bool {
	return n.EffectiveKind() == core.KindKB || n.Collection != ""
}

type outcome struct {
	chunks []core.RetrievedChunk
	err    error
}

// invoke runs one channel under its own deadline. The channel call itself runs on
// a separate goroutine so a backend that ignores ctx cannot hold the worker.
func (o *Orchestrator) invoke(ctx context.Context, inv invocation) core.SearchChannelResult {
	result := newResult(inv)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, o.channelTimeout)
	defer cancel()

	out := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- outcome{err: fmt.Errorf("%w: %v", ErrChannelPanic, r)}
			}
		}()
		chunks, err := inv.channel.Search(ctx, inv.req)
		out <- outcome{chunks: chunks, err: err}
	}()

	select {
	case oc := <-out:
		switch {
		case oc.err != nil:
			result.Err = oc.err
		case oc.chunks != nil:
			result.Chunks = oc.chunks
		}
	case <-ctx.Done():
		result.Err = fmt.Errorf("%w: %v", ErrChannelTimeout, ctx.Err())
	}
	result.Elapsed = time.Since(start)
	o.logger.Debug("channel finished", "channel", result.Channel, "intent", result.IntentCode,
		"chunks", len(result.Chunks), "elapsed", result.Elapsed)
	return result
}

// embedQuestions returns one vector per question, or nil when no embedder is
// configured or embedding failed; the vector channels then embed on their own.
func (o *Orchestrator) embedQuestions(ctx context.Context, questions []string) ([][]float32, error) {
	if o.embedder == nil {
		return nil, nil
	}
	embedCtx, cancel := context.WithTimeout(ctx, o.channelTimeout)
	defer cancel()

	vectors, err := o.embedder.EmbedTexts(embedCtx, questions)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil || len(vectors) != len(questions) {
		o.logger.Debug("shared question embedding unavailable", "err", err)
		return nil, nil
	}
	return vectors, nil
}

func newResult(inv invocation) core.SearchChannelResult {
	r := core.SearchChannelResult{
		Channel:  inv.channel.Type(),
		Question: inv.req.Question,
		Chunks:   []core.RetrievedChunk{},
	}
	if inv.req.Intent != nil {
		r.IntentCode = inv.req.Intent.Code
	}
	return r
}

func sourceLabel(r core.SearchChannelResult) string {
	if r.IntentCode != "" {
		return string(r.Channel) + ":" + r.IntentCode
	}
	return string(r.Channel)
}
