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

// Package storage defines the storage capabilities the retrieval engine consumes.
//
// The engine only reads: it loads intent nodes, searches vector collections and
// searches a lexical index. Write methods exist so local deployments and tests can
// seed data; document ingestion and index lifecycle live elsewhere.
//
// # Implementations
//
//   - storage/badger: intent repository, BM25 lexical index, brute-force vector store
//   - storage/chromem: chromem-go collections, in memory or persisted
//   - storage/yamlfile: intent tree in a hand-editable YAML file
//
// Use in tests with in-memory storage:
//
//	stores, err := badger.NewMemoryStores()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stores.Close()
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access from
// multiple goroutines.
//
// # Context Support
//
// All methods accept context.Context for cancellation and timeout support.
package storage
