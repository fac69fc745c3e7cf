// Package postprocess turns raw channel results into one ranked chunk list.
//
// A Pipeline runs Processors in ascending Order. The built-in stages are:
//
//	1  dedup           merge by chunk identity in channel priority order
//	5  margin-filter   drop chunks far below the top score (Flags.MarginFilter)
//	8  rerank-limiter  bound the rerank input (Flags.RerankLimit)
//	10 rerank          final order from the reranker, at most topK
//
// Further stages can be registered without touching the built-in ones. A stage
// error never fails the request: the stage is skipped and StageDegraded recorded.
package postprocess
