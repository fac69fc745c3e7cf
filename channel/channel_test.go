package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/ragrouter/ai/mock"
	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/storage"
	"github.com/poiesic/ragrouter/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStores(t *testing.T) *badger.MemoryStores {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	ctx := context.Background()
	chunk := func(id, text, collection string) storage.Chunk {
		return storage.Chunk{
			ID: id, Text: text, Collection: collection,
			Vector: mock.DeterministicVector(text, mock.DefaultDimensions),
		}
	}
	require.NoError(t, stores.Vectors.AddChunks(ctx, "kb_invoice",
		chunk("inv-1", "发票抬头填写公司全称", "kb_invoice"),
		chunk("inv-2", "税号在营业执照上", "kb_invoice"),
		chunk("inv-3", "电子发票可在线下载", "kb_invoice"),
	))
	require.NoError(t, stores.Vectors.AddChunks(ctx, "kb_default",
		chunk("gen-1", "公司简介", "kb_default"),
	))
	require.NoError(t, stores.Lexical.IndexChunks(ctx,
		storage.Chunk{ID: "inv-1", Text: "发票抬头填写公司全称", Collection: "kb_invoice"},
		storage.Chunk{ID: "hr-1", Text: "年假天数按工龄计算", Collection: "kb_hr"},
	))
	return stores
}

func TestNewChannels(t *testing.T) {
	stores := seededStores(t)
	embedder := mock.NewMockEmbedder()

	_, err := NewIntentDirected(nil, embedder)
	assert.ErrorIs(t, err, ErrSearcherRequired)
	_, err = NewIntentDirected(stores.Vectors, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewKeyword(nil)
	assert.ErrorIs(t, err, ErrSearcherRequired)
	_, err = NewGlobalVector(stores.Vectors, embedder, "")
	assert.ErrorIs(t, err, ErrCollectionRequired)
}

func TestIntentDirected_Search(t *testing.T) {
	ctx := context.Background()
	stores := seededStores(t)
	embedder := mock.NewMockEmbedder()
	ch, err := NewIntentDirected(stores.Vectors, embedder)
	require.NoError(t, err)
	intent := &core.IntentNode{Code: "fin-invoice-info", Collection: "kb_invoice"}

	t.Run("tags chunks and stays in the collection", func(t *testing.T) {
		chunks, err := ch.Search(ctx, Request{Question: "发票抬头填写公司全称", Intent: intent, TopK: 10})
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, "inv-1", chunks[0].ID)
		for i, c := range chunks {
			assert.Equal(t, core.ChannelIntentDirected, c.Channel)
			assert.Equal(t, "fin-invoice-info", c.IntentCode)
			assert.Equal(t, "kb_invoice", c.Collection)
			if i > 0 {
				assert.GreaterOrEqual(t, chunks[i-1].Score, c.Score)
			}
		}
	})

	t.Run("caps at topK", func(t *testing.T) {
		chunks, err := ch.Search(ctx, Request{Question: "发票", Intent: intent, TopK: 2})
		require.NoError(t, err)
		assert.Len(t, chunks, 2)
	})

	t.Run("uses the supplied vector", func(t *testing.T) {
		embedder.Reset()
		vector := mock.DeterministicVector("税号在营业执照上", mock.DefaultDimensions)
		chunks, err := ch.Search(ctx, Request{Question: "ignored", Intent: intent, TopK: 1, Vector: vector})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "inv-2", chunks[0].ID)
		assert.Equal(t, 0, embedder.CallCount())
	})

	t.Run("missing collection", func(t *testing.T) {
		embedder.Reset()
		_, err := ch.Search(ctx, Request{Question: "q", Intent: &core.IntentNode{Code: "x"}, TopK: 5})
		assert.ErrorIs(t, err, ErrMissingCollection)
		assert.Equal(t, 0, embedder.CallCount())
	})

	t.Run("missing intent", func(t *testing.T) {
		_, err := ch.Search(ctx, Request{Question: "q", TopK: 5})
		assert.ErrorIs(t, err, ErrIntentRequired)
	})

	t.Run("embedding failure", func(t *testing.T) {
		failing := mock.NewMockEmbedder()
		failing.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("embedding service down")
		}
		ch, err := NewIntentDirected(stores.Vectors, failing)
		require.NoError(t, err)
		_, err = ch.Search(ctx, Request{Question: "q", Intent: intent, TopK: 5})
		assert.Error(t, err)
	})
}

func TestKeyword_Search(t *testing.T) {
	stores := seededStores(t)
	ch, err := NewKeyword(stores.Lexical)
	require.NoError(t, err)

	chunks, err := ch.Search(context.Background(), Request{Question: "发票抬头", TopK: 5})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "inv-1", chunks[0].ID)
	assert.Equal(t, core.ChannelKeyword, chunks[0].Channel)
	assert.Empty(t, chunks[0].IntentCode)
}

func TestGlobalVector_Search(t *testing.T) {
	stores := seededStores(t)
	ch, err := NewGlobalVector(stores.Vectors, mock.NewMockEmbedder(), "kb_default")
	require.NoError(t, err)

	chunks, err := ch.Search(context.Background(), Request{Question: "公司简介", TopK: 5})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "gen-1", chunks[0].ID)
	assert.Equal(t, core.ChannelGlobalVector, chunks[0].Channel)
	assert.Equal(t, "kb_default", chunks[0].Collection)
}

func TestRankAndCap(t *testing.T) {
	chunks := []core.RetrievedChunk{
		{ID: "a", Score: 0.1}, {ID: "b", Score: 0.9}, {ID: "c", Score: 0.9}, {ID: "d", Score: 0.5},
	}
	got := rankAndCap(chunks, 3)
	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"b", "c", "d"}, ids)
	assert.NotNil(t, rankAndCap(nil, 3))
}
