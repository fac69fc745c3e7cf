// Package ai provides abstractions for the remote AI services used during retrieval.
//
// The retrieval core depends only on the interfaces declared here:
//
//   - Embedder: turns a question into a query vector
//   - IntentScorer: judges a question against candidate intent nodes
//   - Reranker: reorders a small candidate set of chunks
//   - AIProvider: aggregates the three for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: implementation over OpenAI-compatible APIs (langchaingo)
//   - ai/mock: test doubles with injectable behavior and call counters
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inject behavior and assert on calls.
//
//	provider, err := openai.NewProvider(ai.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	scores, err := provider.IntentScorer().ScoreIntents(ctx, "发票抬头怎么开", candidates)
package ai
