package channel

import "errors"

var (
	// ErrMissingCollection indicates an intent topic has no vector collection bound to it.
	ErrMissingCollection = errors.New("intent has no collection")

	// ErrIntentRequired indicates an intent-directed search was requested without an intent.
	ErrIntentRequired = errors.New("intent required")

	// ErrSearcherRequired is returned when a channel is built without its backend.
	ErrSearcherRequired = errors.New("searcher required")

	// ErrEmbedderRequired is returned when a vector channel is built without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrCollectionRequired is returned when the global vector channel has no default collection.
	ErrCollectionRequired = errors.New("default collection required")

	// ErrChannelRequired is returned when the orchestrator is missing one of its channels.
	ErrChannelRequired = errors.New("channel required")

	// ErrChannelTimeout indicates a channel invocation ran past its deadline.
	ErrChannelTimeout = errors.New("channel timed out")

	// ErrChannelPanic indicates a channel invocation panicked.
	ErrChannelPanic = errors.New("channel panicked")

	// ErrPoolOverloaded indicates the worker pool rejected an invocation.
	ErrPoolOverloaded = errors.New("channel pool overloaded")
)
