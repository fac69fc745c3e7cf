// Package channel implements the independent retrieval backends and the
// orchestrator that queries them in parallel.
//
// Three channel kinds exist:
//   - IntentDirected searches the vector collection bound to one selected topic.
//   - Keyword searches the lexical index, ignoring intent.
//   - GlobalVector searches a default collection, ignoring intent.
//
// The Orchestrator plans one intent-directed invocation per selected intent and
// question plus one keyword and one global vector invocation per question, runs
// them on a shared non-blocking ants pool under per-invocation deadlines, and
// returns one SearchChannelResult per invocation. A slow, failing or panicking
// channel degrades only its own result.
package channel
