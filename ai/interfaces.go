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

package ai

import (
	"context"

	"github.com/poiesic/ragrouter/core"
)

// Embedder provides text embedding capabilities.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// IntentCandidate is what the scorer sees of an intent node.
type IntentCandidate struct {
	// ID is the intent node code; scores are reported against it.
	ID string

	// Path is the human readable location in the tree, e.g. "财务 > 发票 > 发票信息".
	Path string

	Description string
	Examples    []string
}

// IntentScore is the relevance of one candidate to a query, in [0, 1].
type IntentScore struct {
	ID    string
	Score float64
}

// IntentScorer judges how well a query matches each candidate intent.
type IntentScorer interface {
	// ScoreIntents returns a score per candidate. Candidates missing from the
	// result are treated as non-matching by callers.
	// Returns an error if the scoring service is unreachable or its answer
	// cannot be interpreted.
	ScoreIntents(ctx context.Context, query string, candidates []IntentCandidate) ([]IntentScore, error)
}

// Reranker reorders candidate chunks by relevance to a query.
type Reranker interface {
	// Rerank returns at most topN of the given candidates, most relevant first.
	// Implementations must only return chunks taken from candidates.
	Rerank(ctx context.Context, query string, candidates []core.RetrievedChunk, topN int) ([]core.RetrievedChunk, error)
}

// AIProvider aggregates the AI services used during retrieval.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// IntentScorer returns the query classification service.
	IntentScorer() IntentScorer

	// Reranker returns the rerank service.
	Reranker() Reranker

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
