package indexing

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/ragrouter/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingIndexer keeps every batch it accepts.
type recordingIndexer struct {
	mu        sync.Mutex
	IndexFunc func(batch []storage.Chunk) error
	batches   [][]storage.Chunk
	calls     int
}

func (r *recordingIndexer) Index(ctx context.Context, collection string, chunks ...storage.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.IndexFunc != nil {
		if err := r.IndexFunc(chunks); err != nil {
			return err
		}
	}
	r.batches = append(r.batches, chunks)
	return nil
}

func testChunks(n int) []storage.Chunk {
	chunks := make([]storage.Chunk, n)
	for i := range chunks {
		chunks[i] = storage.Chunk{ID: string(rune('a' + i)), Text: "text"}
	}
	return chunks
}

func fastConfig() *Config {
	return &Config{BatchSize: 2, ReportInterval: 1, MaxAttempts: 3, RetryDelay: time.Millisecond}
}

func TestNewLoader(t *testing.T) {
	_, err := NewLoader(nil, nil, nil)
	assert.ErrorIs(t, err, ErrIndexerRequired)

	_, err = NewLoader(&recordingIndexer{}, &Config{BatchSize: 0, MaxAttempts: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)

	_, err = NewLoader(&recordingIndexer{}, &Config{BatchSize: 1, MaxAttempts: 0}, nil)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	l, err := NewLoader(&recordingIndexer{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), l.config)
}

func TestLoader_Load(t *testing.T) {
	indexer := &recordingIndexer{}
	var out bytes.Buffer
	l, err := NewLoader(indexer, fastConfig(), &out)
	require.NoError(t, err)

	n, err := l.Load(context.Background(), "kb_hr", testChunks(5))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, indexer.batches, 3)
	assert.Len(t, indexer.batches[2], 1)
	assert.Contains(t, out.String(), "5/5 (100.0%)")
}

func TestLoader_RetriesBatch(t *testing.T) {
	failures := 1
	indexer := &recordingIndexer{IndexFunc: func([]storage.Chunk) error {
		if failures > 0 {
			failures--
			return errors.New("embedding service busy")
		}
		return nil
	}}
	l, err := NewLoader(indexer, fastConfig(), nil)
	require.NoError(t, err)

	n, err := l.Load(context.Background(), "kb_hr", testChunks(4))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 3, indexer.calls)
}

func TestLoader_StopsOnPersistentFailure(t *testing.T) {
	indexer := &recordingIndexer{IndexFunc: func(batch []storage.Chunk) error {
		if batch[0].ID == "c" {
			return errors.New("down")
		}
		return nil
	}}
	l, err := NewLoader(indexer, fastConfig(), nil)
	require.NoError(t, err)

	n, err := l.Load(context.Background(), "kb_hr", testChunks(6))
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1+3, indexer.calls)
}
