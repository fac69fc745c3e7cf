package storage

import (
	"context"

	"github.com/poiesic/ragrouter/core"
)

// Chunk is a pre-cut passage handed to an index. Vector is only required by vector stores.
type Chunk struct {
	ID         string
	Text       string
	Collection string
	Metadata   map[string]string
	Vector     []float32
}

// IntentRepository persists the intent tree as a flat node list.
// Implementations must be thread-safe and support concurrent access.
type IntentRepository interface {
	// LoadIntentNodes returns every stored node in declaration order.
	// An empty store yields an empty slice, not an error.
	LoadIntentNodes(ctx context.Context) ([]core.IntentNode, error)

	// SaveIntentNodes inserts or replaces nodes by code.
	// Replaced nodes keep their original declaration position.
	SaveIntentNodes(ctx context.Context, nodes ...core.IntentNode) error

	// DeleteIntentNodes removes nodes by code.
	// Returns ErrNotFound if any code doesn't exist.
	DeleteIntentNodes(ctx context.Context, codes ...string) error

	// Close releases resources held by the repository.
	Close() error
}

// VectorSearcher finds chunks near a query vector inside one collection.
type VectorSearcher interface {
	// Search returns up to topK chunks ordered by similarity (highest first).
	// Filters restrict results to chunks whose metadata matches every pair.
	// A collection that doesn't exist yields no results.
	Search(ctx context.Context, collection string, vector []float32, topK int, filters map[string]string) ([]core.RetrievedChunk, error)
}

// VectorStore is a VectorSearcher that can also be seeded.
type VectorStore interface {
	VectorSearcher

	// AddChunks stores chunks in the named collection, creating it when needed.
	// Every chunk must carry a vector.
	AddChunks(ctx context.Context, collection string, chunks ...Chunk) error

	// Count returns the number of chunks in a collection, 0 when it doesn't exist.
	Count(ctx context.Context, collection string) (int, error)
}

// LexicalSearcher performs keyword search over all indexed chunks.
type LexicalSearcher interface {
	// Search returns up to topK chunks ordered by relevance (highest first).
	// Scores are normalized into [0, 1).
	Search(ctx context.Context, query string, topK int) ([]core.RetrievedChunk, error)
}

// LexicalIndex is a LexicalSearcher that can also be maintained.
type LexicalIndex interface {
	LexicalSearcher

	// IndexChunks adds chunks to the index, replacing any with the same ID.
	IndexChunks(ctx context.Context, chunks ...Chunk) error

	// DeleteChunks removes chunks by ID.
	// Returns ErrNotFound if any id doesn't exist.
	DeleteChunks(ctx context.Context, ids ...string) error

	// Close releases resources held by the index.
	Close() error
}
