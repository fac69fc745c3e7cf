package postprocess

import "errors"

// ErrRerankerRequired is returned when the rerank stage is built without a reranker.
var ErrRerankerRequired = errors.New("reranker required")
