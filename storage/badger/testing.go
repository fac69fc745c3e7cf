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

package badger

// MemoryStores bundles in-memory stores sharing one backend, for tests.
type MemoryStores struct {
	Backend *Backend
	Intents *IntentRepository
	Lexical *LexicalIndex
	Vectors *VectorStore
}

// Close closes the stores and then the backend.
func (m *MemoryStores) Close() error {
	m.Lexical.Close()
	m.Intents.Close()
	return m.Backend.Close()
}

// NewMemoryStores creates in-memory intent, lexical and vector stores for testing.
// Caller must Close the result when done.
func NewMemoryStores() (*MemoryStores, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	intents, err := NewIntentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	lexical, err := NewLexicalIndex(backend)
	if err != nil {
		intents.Close()
		backend.Close()
		return nil, err
	}

	vectors, err := NewVectorStore(backend)
	if err != nil {
		intents.Close()
		backend.Close()
		return nil, err
	}

	return &MemoryStores{
		Backend: backend,
		Intents: intents,
		Lexical: lexical,
		Vectors: vectors,
	}, nil
}
