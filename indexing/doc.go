// Package indexing loads pre-cut chunks into the vector and keyword indexes in
// batches, retrying failed batches with exponential backoff and reporting
// progress as it goes.
//
// Chunks arrive already cut; this package does not parse or split documents.
package indexing
