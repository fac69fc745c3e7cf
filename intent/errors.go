package intent

import "errors"

var (
	// ErrInvalidTree indicates the node list does not form a valid domain/category/topic forest.
	ErrInvalidTree = errors.New("invalid intent tree")

	// ErrTreeNotLoaded indicates no tree snapshot has been loaded yet.
	ErrTreeNotLoaded = errors.New("intent tree not loaded")

	// ErrRepositoryRequired indicates a Catalog was created without a repository.
	ErrRepositoryRequired = errors.New("intent repository is required")

	// ErrScorerRequired indicates a Classifier was created without a scorer.
	ErrScorerRequired = errors.New("intent scorer is required")

	// ErrClassificationTimeout indicates the classifier ran out of time.
	ErrClassificationTimeout = errors.New("intent classification timed out")
)
