// Package chromem implements storage.VectorStore with chromem-go collections,
// one chromem collection per intent collection name.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
	"github.com/poiesic/ragrouter/ai"
	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/storage"
)

// Store is a chromem-go backed vector store.
type Store struct {
	db        *chromem.DB
	embedFunc chromem.EmbeddingFunc
	logger    *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithEmbedder lets chromem embed chunks that arrive without a vector.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(s *Store) error {
		if embedder == nil {
			return errors.New("embedder cannot be nil")
		}
		s.embedFunc = toChromemFunc(embedder)
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// NewStore opens a store. An empty path keeps everything in memory; otherwise
// collections are persisted under path.
func NewStore(path string, opts ...Option) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	s := &Store{
		db:        db,
		embedFunc: missingVectorFunc,
		logger:    slog.Default().With("component", "chromem-store"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddChunks stores chunks in the named collection, creating it when needed.
func (s *Store) AddChunks(ctx context.Context, collection string, chunks ...storage.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	col, err := s.db.GetOrCreateCollection(collection, nil, s.embedFunc)
	if err != nil {
		return fmt.Errorf("create collection %q: %w", collection, err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		if chunk.ID == "" {
			return storage.ErrEmptyChunkID
		}
		docs[i] = chromem.Document{
			ID:        chunk.ID,
			Content:   chunk.Text,
			Metadata:  chunk.Metadata,
			Embedding: chunk.Vector,
		}
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents to %q: %w", collection, err)
	}
	s.logger.Debug("added chunks", "collection", collection, "count", len(chunks))
	return nil
}

// Count returns the number of chunks in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	col := s.db.GetCollection(collection, s.embedFunc)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// Search queries one collection by embedding.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int, filters map[string]string) ([]core.RetrievedChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", storage.ErrInvalidQuery)
	}
	col := s.db.GetCollection(collection, s.embedFunc)
	if col == nil {
		return []core.RetrievedChunk{}, nil
	}

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return []core.RetrievedChunk{}, nil
	}
	limit := min(topK, count)

	var where map[string]string
	if len(filters) > 0 {
		where = filters
	}

	results, err := col.QueryEmbedding(ctx, vector, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query %q: %w", collection, err)
	}

	chunks := make([]core.RetrievedChunk, len(results))
	for i, r := range results {
		chunks[i] = core.RetrievedChunk{
			ID:         r.ID,
			Text:       r.Content,
			Score:      float64(r.Similarity),
			Collection: collection,
			Metadata:   r.Metadata,
		}
	}
	return chunks, nil
}

// toChromemFunc converts an ai.Embedder into a chromem.EmbeddingFunc.
func toChromemFunc(e ai.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.EmbedText(ctx, text)
	}
}

func missingVectorFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, storage.ErrMissingVector
}
