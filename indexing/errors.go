package indexing

import "errors"

var (
	// ErrIndexerRequired is returned when no indexer is given to NewLoader.
	ErrIndexerRequired = errors.New("indexer is required")

	// ErrInvalidBatchSize indicates a non-positive batch size.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrInvalidMaxAttempts indicates a non-positive attempt count.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrInvalidChunkFile indicates a chunk file that cannot be loaded.
	ErrInvalidChunkFile = errors.New("invalid chunk file")
)
