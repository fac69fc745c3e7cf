// Package intent routes questions to knowledge domains.
//
// The intent catalogue is a three-level forest: DOMAIN → CATEGORY → TOPIC. Only
// enabled topics are routing targets. A Catalog holds the current Tree snapshot
// and swaps refreshed snapshots in atomically, so one request always sees one tree.
//
// The Classifier asks an ai.IntentScorer to score topics in concurrent batches
// and keeps the best few above a threshold. An empty selection is a normal
// outcome meaning "answer without retrieval-by-domain".
//
//	catalog, _ := intent.NewCatalog(repo)
//	if err := catalog.Refresh(ctx); err != nil {
//	    return err
//	}
//	tree, _ := catalog.Snapshot()
//	classifier, _ := intent.NewClassifier(provider.IntentScorer())
//	intents := classifier.Classify(ctx, tree, "阿里巴巴发票抬头是什么", nil)
package intent
