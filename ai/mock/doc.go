// Package mock provides test double implementations of AI service interfaces.
//
// The mocks let retrieval tests run without a model server and keep results
// deterministic. Every mock exposes a ...Func field for custom behavior and a
// CallCount for assertions; counters are safe under concurrent use.
//
//	provider := mock.NewMockProvider()
//	provider.GetMockScorer().Scores = map[string]float64{"fin-invoice-info": 0.92}
//
// Default behavior:
//
//   - MockEmbedder: unit vectors derived from a text hash
//   - MockIntentScorer: 0.9 when the query contains an example or the leaf name, else 0.1
//   - MockReranker: returns the first topN candidates unchanged
package mock
