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

// Package ragrouter wires storage, AI services and the retrieval engine into
// one handle.
//
//	cfg, _ := config.Load("ragrouter.yaml")
//	r, err := ragrouter.Open(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	result, err := r.Retrieve(ctx, "阿里巴巴发票抬头是什么", 5)
package ragrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/ragrouter/ai"
	"github.com/poiesic/ragrouter/ai/openai"
	"github.com/poiesic/ragrouter/channel"
	"github.com/poiesic/ragrouter/config"
	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/intent"
	"github.com/poiesic/ragrouter/postprocess"
	"github.com/poiesic/ragrouter/retrieval"
	"github.com/poiesic/ragrouter/storage"
	"github.com/poiesic/ragrouter/storage/badger"
	"github.com/poiesic/ragrouter/storage/chromem"
	"github.com/poiesic/ragrouter/storage/yamlfile"
)

// ErrConfigRequired is returned by Open without a configuration.
var ErrConfigRequired = errors.New("config is required")

// Router owns every component behind a retrieval engine.
type Router struct {
	backend      *badger.Backend
	intents      storage.IntentRepository
	lexical      *badger.LexicalIndex
	vectors      storage.VectorStore
	provider     ai.AIProvider
	catalog      *intent.Catalog
	orchestrator *channel.Orchestrator
	engine       *retrieval.Engine

	stopWatch context.CancelFunc
	watchDone chan struct{}
	logger    *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithProvider replaces the OpenAI-compatible provider built from the config.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithLogger sets the logger used by the router itself.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open builds a Router from cfg and loads the intent tree. An empty cfg.DataDir
// keeps the badger database in memory.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Router, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "ragrouter")
	}

	r := &Router{logger: o.logger}
	if err := r.open(ctx, cfg, o); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Router) open(ctx context.Context, cfg *config.Config, o *options) error {
	backend, err := badger.OpenBackend(cfg.DataDir, cfg.DataDir == "")
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	r.backend = backend

	if cfg.IntentsFile != "" {
		r.intents = yamlfile.NewStore(cfg.IntentsFile)
	} else {
		repo, err := badger.NewIntentRepository(backend)
		if err != nil {
			return fmt.Errorf("open intent repository: %w", err)
		}
		r.intents = repo
	}

	if r.lexical, err = badger.NewLexicalIndex(backend); err != nil {
		return fmt.Errorf("open lexical index: %w", err)
	}

	r.provider = o.provider
	if r.provider == nil {
		if r.provider, err = openai.NewProvider(cfg.AIConfig()); err != nil {
			return fmt.Errorf("create ai provider: %w", err)
		}
	}
	embedder := r.provider.Embedder()

	if r.vectors, err = openVectors(cfg.Vectors, backend, embedder); err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}

	if r.catalog, err = intent.NewCatalog(r.intents); err != nil {
		return err
	}
	if err := r.catalog.Refresh(ctx); err != nil {
		return err
	}

	classifier, err := intent.NewClassifier(r.provider.IntentScorer(),
		intent.WithMinScore(cfg.Classifier.MinScore),
		intent.WithMaxIntents(cfg.Classifier.MaxIntents),
		intent.WithBatchSize(cfg.Classifier.BatchSize),
		intent.WithMaxConcurrentBatches(cfg.Classifier.MaxConcurrentBatches),
		intent.WithTimeout(cfg.Classifier.Timeout),
		intent.WithPrefilterThreshold(cfg.Classifier.PrefilterThreshold),
	)
	if err != nil {
		return err
	}

	intentDirected, err := channel.NewIntentDirected(r.vectors, embedder)
	if err != nil {
		return err
	}
	keyword, err := channel.NewKeyword(r.lexical)
	if err != nil {
		return err
	}
	global, err := channel.NewGlobalVector(r.vectors, embedder, cfg.Vectors.DefaultCollection)
	if err != nil {
		return err
	}
	r.orchestrator, err = channel.NewOrchestrator(intentDirected, keyword, global,
		channel.WithPoolSize(cfg.Channels.PoolSize),
		channel.WithChannelTimeout(cfg.Channels.Timeout),
		channel.WithSearchTopK(cfg.Channels.MinSearchTopK, cfg.Channels.SearchTopKMultiplier),
		channel.WithQueryEmbedder(embedder),
	)
	if err != nil {
		return err
	}

	pipeline, err := postprocess.NewDefaultPipeline(r.provider.Reranker(), postprocess.StageConfig{
		MarginRatio:           cfg.PostProcess.MarginRatio,
		MarginOrder:           cfg.PostProcess.MarginOrder,
		RerankLimitMultiplier: cfg.PostProcess.RerankLimitMultiplier,
		RerankTimeout:         cfg.PostProcess.RerankTimeout,
	})
	if err != nil {
		return err
	}

	r.engine, err = retrieval.NewEngine(r.catalog, classifier, r.orchestrator, pipeline,
		retrieval.WithDefaultTopK(cfg.Retrieval.DefaultTopK),
		retrieval.WithMaxSubQuestions(cfg.Retrieval.MaxSubQuestions),
		retrieval.WithFlags(core.Flags{
			MarginFilter: cfg.PostProcess.MarginFilter,
			RerankLimit:  cfg.PostProcess.RerankLimit,
		}),
	)
	if err != nil {
		return err
	}

	if interval := cfg.Catalog.RefreshInterval; interval > 0 {
		watchCtx, cancel := context.WithCancel(context.Background())
		r.stopWatch = cancel
		r.watchDone = make(chan struct{})
		go func() {
			defer close(r.watchDone)
			r.catalog.Watch(watchCtx, interval)
		}()
	}
	return nil
}

func openVectors(cfg config.VectorConfig, backend *badger.Backend, embedder ai.Embedder) (storage.VectorStore, error) {
	if cfg.Backend == config.VectorBackendBadger {
		return badger.NewVectorStore(backend)
	}
	return chromem.NewStore(cfg.Path, chromem.WithEmbedder(embedder))
}

// Close stops the catalog watcher and releases components in reverse order of creation.
func (r *Router) Close() error {
	if r.stopWatch != nil {
		r.stopWatch()
		<-r.watchDone
	}
	if r.orchestrator != nil {
		r.orchestrator.Release()
	}
	if r.provider != nil {
		if err := r.provider.Close(); err != nil {
			r.logger.Error("error closing AI provider", "err", err)
		}
	}
	if r.lexical != nil {
		if err := r.lexical.Close(); err != nil {
			r.logger.Error("error closing lexical index", "err", err)
			return err
		}
	}
	if r.intents != nil {
		if err := r.intents.Close(); err != nil {
			r.logger.Error("error closing intent repository", "err", err)
			return err
		}
	}
	if r.backend != nil && !r.backend.IsClosed() {
		if err := r.backend.Close(); err != nil {
			r.logger.Error("error closing backend storage", "err", err)
			return err
		}
	}
	return nil
}

// Retrieve answers query with the grouped knowledge context.
func (r *Router) Retrieve(ctx context.Context, query string, topK int, subQuestions ...string) (*core.RetrievalResult, error) {
	return r.engine.Retrieve(ctx, query, topK, subQuestions...)
}

// Engine returns the retrieval engine for monitored requests.
func (r *Router) Engine() *retrieval.Engine {
	return r.engine
}

// Catalog returns the intent tree catalog.
func (r *Router) Catalog() *intent.Catalog {
	return r.catalog
}

// ImportIntents validates nodes as a tree together with the stored ones, saves
// them and refreshes the catalog.
func (r *Router) ImportIntents(ctx context.Context, nodes ...core.IntentNode) error {
	existing, err := r.intents.LoadIntentNodes(ctx)
	if err != nil {
		return fmt.Errorf("load intent nodes: %w", err)
	}
	if _, err := intent.BuildTree(mergeNodes(existing, nodes)); err != nil {
		return err
	}
	if err := r.intents.SaveIntentNodes(ctx, nodes...); err != nil {
		return fmt.Errorf("save intent nodes: %w", err)
	}
	return r.catalog.Refresh(ctx)
}

// mergeNodes replaces existing nodes by code and appends new ones, the way
// IntentRepository.SaveIntentNodes does.
func mergeNodes(existing, updates []core.IntentNode) []core.IntentNode {
	pos := make(map[string]int, len(existing))
	out := make([]core.IntentNode, len(existing), len(existing)+len(updates))
	copy(out, existing)
	for i, n := range out {
		pos[n.Code] = i
	}
	for _, n := range updates {
		if i, ok := pos[n.Code]; ok {
			out[i] = n
			continue
		}
		pos[n.Code] = len(out)
		out = append(out, n)
	}
	return out
}

// Index embeds chunks that carry no vector and adds them to the named vector
// collection and to the lexical index. The caller's chunks are not modified.
func (r *Router) Index(ctx context.Context, collection string, chunks ...storage.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	chunks = slices.Clone(chunks)
	var (
		texts   []string
		missing []int
	)
	for i := range chunks {
		chunks[i].Collection = collection
		if len(chunks[i].Vector) == 0 {
			texts = append(texts, chunks[i].Text)
			missing = append(missing, i)
		}
	}
	if len(texts) > 0 {
		vectors, err := r.provider.Embedder().EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embed chunks: got %d vectors for %d texts", len(vectors), len(texts))
		}
		for j, i := range missing {
			chunks[i].Vector = vectors[j]
		}
	}

	if err := r.vectors.AddChunks(ctx, collection, chunks...); err != nil {
		return fmt.Errorf("add chunks to %s: %w", collection, err)
	}
	if err := r.lexical.IndexChunks(ctx, chunks...); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	r.logger.Info("indexed chunks", "collection", collection, "count", len(chunks), "embedded", len(texts))
	return nil
}
