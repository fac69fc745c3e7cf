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

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/ragrouter/assemble"
	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/intent"
)

// Engine defaults
const (
	DefaultTopK            = 5
	DefaultMaxSubQuestions = 3
)

// TreeSource hands out intent tree snapshots. *intent.Catalog implements it.
type TreeSource interface {
	Snapshot() (*intent.Tree, error)
}

// Classifier routes questions to intents. *intent.Classifier implements it.
type Classifier interface {
	ClassifyAll(ctx context.Context, tree *intent.Tree, questions []string, sc *core.SearchContext) []core.NodeScore
}

// ChannelRunner fans a request out to the search channels. *channel.Orchestrator implements it.
type ChannelRunner interface {
	Run(ctx context.Context, sc *core.SearchContext) ([]core.SearchChannelResult, error)
}

// Pipeline turns channel results into the final ranked list. *postprocess.Pipeline implements it.
type Pipeline interface {
	Run(ctx context.Context, results []core.SearchChannelResult, sc *core.SearchContext) []core.RetrievedChunk
}

// Request is a fully specified retrieval.
type Request struct {
	Query        string
	SubQuestions []string
	TopK         int
	// Flags overrides the engine's default post-processing flags when set.
	Flags *core.Flags
}

// Engine answers retrieval requests: classify, search, post-process, assemble.
type Engine struct {
	trees      TreeSource
	classifier Classifier
	runner     ChannelRunner
	pipeline   Pipeline
	assembler  *assemble.Assembler

	defaultTopK     int
	maxSubQuestions int
	flags           core.Flags
	logger          *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithDefaultTopK sets the topK used when a request asks for none.
func WithDefaultTopK(k int) Option {
	return func(e *Engine) error {
		if k < 1 {
			return errors.New("default topK must be positive")
		}
		e.defaultTopK = k
		return nil
	}
}

// WithMaxSubQuestions caps the number of sub-questions searched per request.
func WithMaxSubQuestions(n int) Option {
	return func(e *Engine) error {
		if n < 0 {
			return errors.New("max sub-questions cannot be negative")
		}
		e.maxSubQuestions = n
		return nil
	}
}

// WithFlags sets the default post-processing flags.
func WithFlags(flags core.Flags) Option {
	return func(e *Engine) error {
		e.flags = flags
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a retrieval engine.
func NewEngine(trees TreeSource, classifier Classifier, runner ChannelRunner, pipeline Pipeline, opts ...Option) (*Engine, error) {
	if trees == nil {
		return nil, ErrTreeSourceRequired
	}
	if classifier == nil {
		return nil, ErrClassifierRequired
	}
	if runner == nil {
		return nil, ErrChannelRunnerRequired
	}
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}

	e := &Engine{
		trees:           trees,
		classifier:      classifier,
		runner:          runner,
		pipeline:        pipeline,
		defaultTopK:     DefaultTopK,
		maxSubQuestions: DefaultMaxSubQuestions,
		logger:          slog.Default().With("component", "retrieval"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.assembler = assemble.NewAssembler(e.logger)
	return e, nil
}

// Retrieve returns the grouped context for query. topK <= 0 selects the default.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int, subQuestions ...string) (*core.RetrievalResult, error) {
	return e.Execute(ctx, Request{Query: query, TopK: topK, SubQuestions: subQuestions}, nil)
}

// Execute runs req with monitoring. The monitor receives callbacks at each stage.
// Local failures are absorbed and listed in the result's Degraded events; an error
// is returned only for an empty query, a missing tree or caller cancellation.
func (e *Engine) Execute(ctx context.Context, req Request, monitor Monitor) (*core.RetrievalResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	topK := req.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}
	flags := e.flags
	if req.Flags != nil {
		flags = *req.Flags
	}

	tree, err := e.trees.Snapshot()
	if err != nil {
		e.logger.Error("no intent tree snapshot", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrTreeUnavailable, err)
	}

	sc := &core.SearchContext{
		RequestID:    uuid.NewString(),
		Question:     query,
		SubQuestions: e.subQuestions(req.SubQuestions),
		TopK:         topK,
		Flags:        flags,
		Degradations: core.NewDegradations(),
	}
	logger := e.logger.With("request_id", sc.RequestID)
	start := time.Now()
	monitor.Start(sc.RequestID, query)

	sc.Intents = e.classifier.ClassifyAll(ctx, tree, sc.Questions(), sc)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	monitor.AfterClassification(sc.Intents)
	logger.Debug("classified", "intents", len(sc.Intents), "sub_questions", len(sc.SubQuestions))

	results, err := e.runner.Run(ctx, sc)
	if err != nil {
		return nil, err
	}
	monitor.AfterChannels(results)

	chunks := e.pipeline.Run(ctx, results, sc)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	monitor.AfterPostProcessing(chunks)

	result := e.assembler.Assemble(tree, sc.Intents, chunks)
	result.RequestID = sc.RequestID
	result.Degraded = sc.Degradations.Events()
	monitor.Finish(result)

	logger.Info("retrieval finished",
		"intents", len(result.Intents),
		"chunks", len(chunks),
		"degraded", len(result.Degraded),
		"elapsed", time.Since(start))
	return result, nil
}

func (e *Engine) subQuestions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if len(out) == e.maxSubQuestions {
			break
		}
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
