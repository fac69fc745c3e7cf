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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/poiesic/ragrouter/core"
)

// Processor is one post-processing stage.
type Processor interface {
	Name() string

	// Order positions the stage; lower runs first.
	Order() int

	// Enabled reports whether the stage runs for this request.
	Enabled(sc *core.SearchContext) bool

	// Process transforms chunks. results are the raw channel results of the request.
	Process(ctx context.Context, chunks []core.RetrievedChunk, results []core.SearchChannelResult, sc *core.SearchContext) ([]core.RetrievedChunk, error)
}

// Pipeline runs registered processors in ascending order, ties by registration order.
type Pipeline struct {
	mu     sync.RWMutex
	stages []Processor
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an empty pipeline.
func NewPipeline(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		logger: slog.Default().With("component", "postprocess"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Register adds processors. Safe to call while the pipeline is running; in-flight
// runs keep the stage list they started with.
func (p *Pipeline) Register(processors ...Processor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stages := make([]Processor, 0, len(p.stages)+len(processors))
	stages = append(stages, p.stages...)
	for _, proc := range processors {
		if proc != nil {
			stages = append(stages, proc)
		}
	}
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].Order() < stages[j].Order()
	})
	p.stages = stages
}

// Stages returns the registered processors in run order.
func (p *Pipeline) Stages() []Processor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Processor(nil), p.stages...)
}

// Run feeds the channel results through every enabled stage. A stage that fails
// is recorded as StageDegraded and its input passes through unchanged.
func (p *Pipeline) Run(ctx context.Context, results []core.SearchChannelResult, sc *core.SearchContext) []core.RetrievedChunk {
	p.mu.RLock()
	stages := p.stages
	p.mu.RUnlock()

	chunks := []core.RetrievedChunk{}
	for _, stage := range stages {
		if !stage.Enabled(sc) {
			continue
		}
		out, err := stage.Process(ctx, chunks, results, sc)
		if err != nil {
			p.logger.Warn("post-processing stage degraded", "stage", stage.Name(), "err", err)
			sc.Record(core.StageDegraded, stage.Name(), fmt.Errorf("%s: %w", stage.Name(), err))
			continue
		}
		p.logger.Debug("post-processing stage finished", "stage", stage.Name(), "in", len(chunks), "out", len(out))
		if out == nil {
			out = []core.RetrievedChunk{}
		}
		chunks = out
	}
	return chunks
}
