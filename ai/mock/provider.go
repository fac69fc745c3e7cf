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

package mock

import "github.com/poiesic/ragrouter/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates mock embedder, scorer and reranker instances.
type MockProvider struct {
	embedder *MockEmbedder
	scorer   *MockIntentScorer
	reranker *MockReranker
}

var _ ai.AIProvider = (*MockProvider)(nil)

// NewMockProvider creates a new mock provider with default mock services.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		embedder: NewMockEmbedder(),
		scorer:   NewMockIntentScorer(),
		reranker: NewMockReranker(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
// Nil arguments are replaced by defaults.
func NewMockProviderWithServices(embedder *MockEmbedder, scorer *MockIntentScorer, reranker *MockReranker) *MockProvider {
	p := NewMockProvider()
	if embedder != nil {
		p.embedder = embedder
	}
	if scorer != nil {
		p.scorer = scorer
	}
	if reranker != nil {
		p.reranker = reranker
	}
	return p
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// IntentScorer returns the mock intent scorer.
func (p *MockProvider) IntentScorer() ai.IntentScorer {
	return p.scorer
}

// Reranker returns the mock reranker.
func (p *MockProvider) Reranker() ai.Reranker {
	return p.reranker
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockScorer returns the underlying mock scorer for test assertions.
func (p *MockProvider) GetMockScorer() *MockIntentScorer {
	return p.scorer
}

// GetMockReranker returns the underlying mock reranker for test assertions.
func (p *MockProvider) GetMockReranker() *MockReranker {
	return p.reranker
}
