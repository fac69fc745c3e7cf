package badger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/storage"
)

// VectorStore implements storage.VectorStore with a full scan of one collection.
// It suits small local corpora; larger ones belong in storage/chromem.
type VectorStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a new VectorStore.
func NewVectorStore(backend *Backend) (*VectorStore, error) {
	return &VectorStore{
		backend: backend,
		logger:  slog.Default().With("component", "badger-vector-store"),
	}, nil
}

// AddChunks stores chunks in the named collection.
func (s *VectorStore) AddChunks(ctx context.Context, collection string, chunks ...storage.Chunk) error {
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return storage.ErrEmptyChunkID
		}
		if len(chunk.Vector) == 0 {
			return fmt.Errorf("%w: %q", storage.ErrMissingVector, chunk.ID)
		}
	}

	return s.backend.Update(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			doc := storage.VectorDoc{
				ID:         chunk.ID,
				Text:       chunk.Text,
				Collection: collection,
				Metadata:   chunk.Metadata,
				Vector:     normalize(chunk.Vector),
			}
			if err := tx.Set(makeVectorDocKey(collection, chunk.ID), storage.MarshalVectorDoc(&doc)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of chunks in a collection.
func (s *VectorStore) Count(ctx context.Context, collection string) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialVectorDocKey(collection)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// Search finds the chunks of a collection closest to vector by cosine similarity.
func (s *VectorStore) Search(ctx context.Context, collection string, vector []float32, topK int, filters map[string]string) ([]core.RetrievedChunk, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", storage.ErrInvalidQuery)
	}
	query := normalize(vector)
	var results []core.RetrievedChunk

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialVectorDocKey(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc *storage.VectorDoc
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalVectorDoc(val)
				return err
			})
			if err != nil {
				return err
			}
			if !matchesFilters(doc.Metadata, filters) {
				continue
			}
			results = append(results, core.RetrievedChunk{
				ID:         doc.ID,
				Text:       doc.Text,
				Score:      float64(dotProduct(query, doc.Vector)),
				Collection: doc.Collection,
				Metadata:   doc.Metadata,
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(results, func(a, b core.RetrievedChunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > topK {
		results = results[:topK]
	}
	if results == nil {
		results = []core.RetrievedChunk{}
	}
	return results, nil
}

func matchesFilters(metadata, filters map[string]string) bool {
	for k, v := range filters {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// normalize returns a unit-length copy of v, or v itself when it is all zeros.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f * norm
	}
	return out
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
