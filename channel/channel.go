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

package channel

import (
	"context"
	"fmt"
	"sort"

	"github.com/poiesic/ragrouter/ai"
	"github.com/poiesic/ragrouter/core"
	"github.com/poiesic/ragrouter/storage"
)

// Request is one channel invocation.
type Request struct {
	Question string
	// Intent is the target topic; only the intent-directed channel reads it.
	Intent *core.IntentNode
	TopK   int
	// Vector is the question embedding when the caller already has one.
	Vector []float32
}

// Channel is an independent retrieval backend.
type Channel interface {
	// Type identifies the channel in results and during deduplication.
	Type() core.ChannelType

	// Search returns at most req.TopK chunks, highest score first.
	Search(ctx context.Context, req Request) ([]core.RetrievedChunk, error)
}

// IntentDirected searches the vector collection bound to the requested intent.
type IntentDirected struct {
	searcher storage.VectorSearcher
	embedder ai.Embedder
}

var _ Channel = (*IntentDirected)(nil)

// NewIntentDirected creates the per-intent vector channel.
func NewIntentDirected(searcher storage.VectorSearcher, embedder ai.Embedder) (*IntentDirected, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	return &IntentDirected{searcher: searcher, embedder: embedder}, nil
}

func (c *IntentDirected) Type() core.ChannelType { return core.ChannelIntentDirected }

// Search queries only the intent's collection. A topic without a collection is
// rejected with ErrMissingCollection before any remote call.
func (c *IntentDirected) Search(ctx context.Context, req Request) ([]core.RetrievedChunk, error) {
	if req.Intent == nil {
		return nil, ErrIntentRequired
	}
	collection := req.Intent.Collection
	if collection == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingCollection, req.Intent.Code)
	}

	vector, err := queryVector(ctx, c.embedder, req)
	if err != nil {
		return nil, err
	}
	chunks, err := c.searcher.Search(ctx, collection, vector, req.TopK, nil)
	if err != nil {
		return nil, fmt.Errorf("search collection %s: %w", collection, err)
	}
	for i := range chunks {
		chunks[i].Channel = core.ChannelIntentDirected
		chunks[i].IntentCode = req.Intent.Code
		chunks[i].Collection = collection
	}
	return rankAndCap(chunks, req.TopK), nil
}

// Keyword runs a lexical search independent of intent.
type Keyword struct {
	searcher storage.LexicalSearcher
}

var _ Channel = (*Keyword)(nil)

// NewKeyword creates the lexical channel.
func NewKeyword(searcher storage.LexicalSearcher) (*Keyword, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	return &Keyword{searcher: searcher}, nil
}

func (c *Keyword) Type() core.ChannelType { return core.ChannelKeyword }

func (c *Keyword) Search(ctx context.Context, req Request) ([]core.RetrievedChunk, error) {
	chunks, err := c.searcher.Search(ctx, req.Question, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	for i := range chunks {
		chunks[i].Channel = core.ChannelKeyword
		chunks[i].IntentCode = ""
	}
	return rankAndCap(chunks, req.TopK), nil
}

// GlobalVector searches a default collection regardless of intent.
type GlobalVector struct {
	searcher   storage.VectorSearcher
	embedder   ai.Embedder
	collection string
}

var _ Channel = (*GlobalVector)(nil)

// NewGlobalVector creates the fallback vector channel over collection.
func NewGlobalVector(searcher storage.VectorSearcher, embedder ai.Embedder, collection string) (*GlobalVector, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if collection == "" {
		return nil, ErrCollectionRequired
	}
	return &GlobalVector{searcher: searcher, embedder: embedder, collection: collection}, nil
}

func (c *GlobalVector) Type() core.ChannelType { return core.ChannelGlobalVector }

func (c *GlobalVector) Search(ctx context.Context, req Request) ([]core.RetrievedChunk, error) {
	vector, err := queryVector(ctx, c.embedder, req)
	if err != nil {
		return nil, err
	}
	chunks, err := c.searcher.Search(ctx, c.collection, vector, req.TopK, nil)
	if err != nil {
		return nil, fmt.Errorf("search collection %s: %w", c.collection, err)
	}
	for i := range chunks {
		chunks[i].Channel = core.ChannelGlobalVector
		chunks[i].IntentCode = ""
		chunks[i].Collection = c.collection
	}
	return rankAndCap(chunks, req.TopK), nil
}

func queryVector(ctx context.Context, embedder ai.Embedder, req Request) ([]float32, error) {
	if len(req.Vector) > 0 {
		return req.Vector, nil
	}
	vector, err := embedder.EmbedText(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	return vector, nil
}

// rankAndCap sorts by score descending, keeping backend order on ties.
func rankAndCap(chunks []core.RetrievedChunk, topK int) []core.RetrievedChunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
	if topK >= 0 && len(chunks) > topK {
		chunks = chunks[:topK]
	}
	if chunks == nil {
		chunks = []core.RetrievedChunk{}
	}
	return chunks
}
