package badger

import (
	"context"
	"testing"

	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexicalFixture(t *testing.T) (*MemoryStores, context.Context) {
	t.Helper()
	stores, err := NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	ctx := context.Background()
	err = stores.Lexical.IndexChunks(ctx,
		storage.Chunk{ID: "inv-1", Text: "阿里巴巴发票抬头：阿里巴巴（中国）有限公司", Collection: "kb_invoice",
			Metadata: map[string]string{"source": "finance.md"}},
		storage.Chunk{ID: "inv-2", Text: "开票税号请在财务系统中查询", Collection: "kb_invoice"},
		storage.Chunk{ID: "hr-1", Text: "Annual leave requests go through the HR portal", Collection: "kb_hr"},
	)
	require.NoError(t, err)
	return stores, ctx
}

func TestLexicalIndex_Search(t *testing.T) {
	stores, ctx := lexicalFixture(t)

	t.Run("cjk bigram match", func(t *testing.T) {
		results, err := stores.Lexical.Search(ctx, "阿里巴巴发票抬头", 10)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "inv-1", results[0].ID)
		assert.Equal(t, core.ChannelKeyword, results[0].Channel)
		assert.Equal(t, "kb_invoice", results[0].Collection)
		assert.Equal(t, "finance.md", results[0].Metadata["source"])
	})

	t.Run("scores are in [0,1) and descending", func(t *testing.T) {
		results, err := stores.Lexical.Search(ctx, "发票 税号 财务", 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		for i, r := range results {
			assert.Greater(t, r.Score, 0.0)
			assert.Less(t, r.Score, 1.0)
			if i > 0 {
				assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
			}
		}
	})

	t.Run("latin terms are case-insensitive", func(t *testing.T) {
		results, err := stores.Lexical.Search(ctx, "LEAVE portal", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "hr-1", results[0].ID)
	})

	t.Run("topK caps results", func(t *testing.T) {
		results, err := stores.Lexical.Search(ctx, "发票 税号", 1)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("no matching terms", func(t *testing.T) {
		results, err := stores.Lexical.Search(ctx, "kubernetes", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("only stop words", func(t *testing.T) {
		results, err := stores.Lexical.Search(ctx, "the of and", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("invalid topK", func(t *testing.T) {
		_, err := stores.Lexical.Search(ctx, "发票", 0)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})
}

func TestLexicalIndex_ReindexAndDelete(t *testing.T) {
	stores, ctx := lexicalFixture(t)

	require.NoError(t, stores.Lexical.IndexChunks(ctx,
		storage.Chunk{ID: "hr-1", Text: "Expense reimbursement needs original receipts", Collection: "kb_hr"}))

	results, err := stores.Lexical.Search(ctx, "leave", 10)
	require.NoError(t, err)
	assert.Empty(t, results, "old postings must be gone after reindex")

	results, err = stores.Lexical.Search(ctx, "receipts", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hr-1", results[0].ID)

	require.NoError(t, stores.Lexical.DeleteChunks(ctx, "hr-1"))
	results, err = stores.Lexical.Search(ctx, "receipts", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	err = stores.Lexical.DeleteChunks(ctx, "hr-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLexicalIndex_EmptyID(t *testing.T) {
	stores, err := NewMemoryStores()
	require.NoError(t, err)
	defer stores.Close()

	err = stores.Lexical.IndexChunks(context.Background(), storage.Chunk{Text: "x"})
	assert.ErrorIs(t, err, storage.ErrEmptyChunkID)
}

func TestLexicalIndex_EmptyIndex(t *testing.T) {
	stores, err := NewMemoryStores()
	require.NoError(t, err)
	defer stores.Close()

	results, err := stores.Lexical.Search(context.Background(), "发票", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}
