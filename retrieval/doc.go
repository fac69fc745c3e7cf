// Package retrieval is the entry point of the intent-aware retrieval engine.
//
// An Engine takes one tree snapshot per request, routes the question (and any
// sub-questions) to intents, fans out to the search channels, post-processes the
// candidates and assembles a grouped context:
//
//	result, err := engine.Retrieve(ctx, "阿里巴巴发票抬头是什么", 5)
//	if err != nil {
//	    return err // empty query, no tree, or cancelled
//	}
//	if result.IsEmpty() {
//	    // no relevant knowledge; answer without context
//	}
//
// Degraded components never fail a request; they are listed in result.Degraded.
package retrieval
