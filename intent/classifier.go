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

package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/poiesic/ragrouter/ai"
	"github.com/poiesic/ragrouter/core"
	"golang.org/x/sync/errgroup"
)

// Classifier defaults
const (
	DefaultMinScore             = 0.35
	DefaultMaxIntents           = 3
	DefaultBatchSize            = 20
	DefaultMaxConcurrentBatches = 4
	DefaultTimeout              = 5 * time.Second
	DefaultPrefilterThreshold   = 40
)

// Classifier scores a query against the enabled topics of a tree.
type Classifier struct {
	scorer               ai.IntentScorer
	minScore             float64
	maxIntents           int
	batchSize            int
	maxConcurrentBatches int
	timeout              time.Duration
	prefilterThreshold   int
	prefilter            *Prefilter
	logger               *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier) error

// WithMinScore sets the score below which a topic is not selected.
func WithMinScore(score float64) Option {
	return func(c *Classifier) error {
		if score < 0 || score > 1 {
			return fmt.Errorf("min score must be in [0,1], got %v", score)
		}
		c.minScore = score
		return nil
	}
}

// WithMaxIntents sets the maximum number of selected topics.
func WithMaxIntents(n int) Option {
	return func(c *Classifier) error {
		if n < 1 {
			return errors.New("max intents must be positive")
		}
		c.maxIntents = n
		return nil
	}
}

// WithBatchSize sets how many candidates share one scorer call.
func WithBatchSize(n int) Option {
	return func(c *Classifier) error {
		if n < 1 {
			return errors.New("batch size must be positive")
		}
		c.batchSize = n
		return nil
	}
}

// WithMaxConcurrentBatches bounds concurrent scorer calls per question.
func WithMaxConcurrentBatches(n int) Option {
	return func(c *Classifier) error {
		if n < 1 {
			return errors.New("max concurrent batches must be positive")
		}
		c.maxConcurrentBatches = n
		return nil
	}
}

// WithTimeout sets the overall classification deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithPrefilterThreshold sets the candidate count above which the keyword
// prefilter runs. Zero disables prefiltering.
func WithPrefilterThreshold(n int) Option {
	return func(c *Classifier) error {
		if n < 0 {
			return errors.New("prefilter threshold cannot be negative")
		}
		c.prefilterThreshold = n
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// NewClassifier creates a classifier over scorer.
func NewClassifier(scorer ai.IntentScorer, opts ...Option) (*Classifier, error) {
	if scorer == nil {
		return nil, ErrScorerRequired
	}
	c := &Classifier{
		scorer:               scorer,
		minScore:             DefaultMinScore,
		maxIntents:           DefaultMaxIntents,
		batchSize:            DefaultBatchSize,
		maxConcurrentBatches: DefaultMaxConcurrentBatches,
		timeout:              DefaultTimeout,
		prefilterThreshold:   DefaultPrefilterThreshold,
		logger:               slog.Default().With("component", "intent-classifier"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.prefilterThreshold > 0 {
		c.prefilter = NewPrefilter(c.prefilterThreshold)
	}
	return c, nil
}

// Classify returns at most maxIntents topics scoring at least minScore, best first
// with ties in tree order. Scorer failures never surface as errors: a failed batch
// leaves its candidates unselected and a timeout yields no intents, both recorded
// on sc as ClassificationDegraded.
func (c *Classifier) Classify(ctx context.Context, tree *Tree, query string, sc *core.SearchContext) []core.NodeScore {
	candidates := tree.Leaves()
	if len(candidates) == 0 {
		return []core.NodeScore{}
	}
	if c.prefilter != nil && len(candidates) > c.prefilterThreshold {
		if narrowed := c.prefilter.Filter(tree, query, candidates); len(narrowed) > 0 {
			c.logger.Debug("prefiltered candidates", "from", len(candidates), "to", len(narrowed))
			candidates = narrowed
		}
	}

	scores, ok := c.scoreBatches(ctx, tree, query, candidates, sc)
	if !ok {
		return []core.NodeScore{}
	}
	return c.selectTop(tree, scores)
}

// ClassifyAll classifies every question concurrently and merges the results per
// topic, keeping each topic's best score.
func (c *Classifier) ClassifyAll(ctx context.Context, tree *Tree, questions []string, sc *core.SearchContext) []core.NodeScore {
	if len(questions) == 1 {
		return c.Classify(ctx, tree, questions[0], sc)
	}

	perQuestion := make([][]core.NodeScore, len(questions))
	var g errgroup.Group
	for i, q := range questions {
		g.Go(func() error {
			perQuestion[i] = c.Classify(ctx, tree, q, sc)
			return nil
		})
	}
	_ = g.Wait()

	best := make(map[string]float64)
	for _, list := range perQuestion {
		for _, ns := range list {
			if s, ok := best[ns.Node.Code]; !ok || ns.Score > s {
				best[ns.Node.Code] = ns.Score
			}
		}
	}
	return c.selectTop(tree, best)
}

// scoreBatches fans candidate batches out to the scorer. ok is false when the
// overall deadline passed or the caller cancelled.
func (c *Classifier) scoreBatches(ctx context.Context, tree *Tree, query string, candidates []*core.IntentNode, sc *core.SearchContext) (map[string]float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var batches [][]*core.IntentNode
	for start := 0; start < len(candidates); start += c.batchSize {
		end := min(start+c.batchSize, len(candidates))
		batches = append(batches, candidates[start:end])
	}

	results := make([][]ai.IntentScore, len(batches))
	failures := make([]error, len(batches))

	var g errgroup.Group
	g.SetLimit(c.maxConcurrentBatches)
	done := make(chan struct{})
	go func() {
		for i, batch := range batches {
			g.Go(func() error {
				results[i], failures[i] = c.scorer.ScoreIntents(ctx, query, toCandidates(tree, batch))
				return nil
			})
		}
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("intent classification degraded", "reason", "timeout", "err", ctx.Err())
		sc.Record(core.ClassificationDegraded, "classifier", fmt.Errorf("%w: %v", ErrClassificationTimeout, ctx.Err()))
		return nil, false
	}

	scores := make(map[string]float64)
	for i, batch := range batches {
		if failures[i] != nil {
			c.logger.Warn("intent classification degraded", "reason", "batch failed", "batch", i, "size", len(batch), "err", failures[i])
			sc.Record(core.ClassificationDegraded, "classifier", failures[i])
			continue
		}
		known := make(map[string]bool, len(batch))
		for _, n := range batch {
			known[n.Code] = true
		}
		for _, s := range results[i] {
			if !known[s.ID] {
				continue
			}
			if prev, ok := scores[s.ID]; !ok || s.Score > prev {
				scores[s.ID] = s.Score
			}
		}
	}
	return scores, true
}

// selectTop applies the score floor, ordering and intent cap.
func (c *Classifier) selectTop(tree *Tree, scores map[string]float64) []core.NodeScore {
	selected := make([]core.NodeScore, 0, len(scores))
	for code, score := range scores {
		if score < c.minScore {
			continue
		}
		node := tree.Node(code)
		if node == nil {
			continue
		}
		selected = append(selected, core.NodeScore{Node: node, Score: score})
	}
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].Score != selected[j].Score {
			return selected[i].Score > selected[j].Score
		}
		return tree.Rank(selected[i].Node.Code) < tree.Rank(selected[j].Node.Code)
	})
	if len(selected) > c.maxIntents {
		selected = selected[:c.maxIntents]
	}
	return selected
}

func toCandidates(tree *Tree, nodes []*core.IntentNode) []ai.IntentCandidate {
	out := make([]ai.IntentCandidate, len(nodes))
	for i, n := range nodes {
		out[i] = ai.IntentCandidate{
			ID:          n.Code,
			Path:        tree.PathString(n.Code),
			Description: n.Description,
			Examples:    n.Examples,
		}
	}
	return out
}
