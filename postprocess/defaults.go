package postprocess

import (
	"time"

	"github.com/poiesic/ragrouter/ai"
)

// StageConfig tunes the built-in stages.
type StageConfig struct {
	MarginRatio           float64
	MarginOrder           int
	RerankLimitMultiplier int
	RerankTimeout         time.Duration
}

// DefaultStageConfig returns the built-in stage tuning.
func DefaultStageConfig() StageConfig {
	return StageConfig{
		MarginRatio:           DefaultMarginRatio,
		MarginOrder:           MarginFilterOrder,
		RerankLimitMultiplier: DefaultRerankLimitMultiplier,
		RerankTimeout:         DefaultRerankTimeout,
	}
}

// NewDefaultPipeline registers dedup, margin filter, rerank limiter and rerank.
func NewDefaultPipeline(reranker ai.Reranker, cfg StageConfig, opts ...Option) (*Pipeline, error) {
	p, err := NewPipeline(opts...)
	if err != nil {
		return nil, err
	}
	margin, err := NewMarginFilter(cfg.MarginRatio, cfg.MarginOrder)
	if err != nil {
		return nil, err
	}
	limiter, err := NewRerankLimiter(cfg.RerankLimitMultiplier)
	if err != nil {
		return nil, err
	}
	var rerankOpts []RerankOption
	if cfg.RerankTimeout > 0 {
		rerankOpts = append(rerankOpts, WithRerankTimeout(cfg.RerankTimeout))
	}
	rerank, err := NewRerank(reranker, rerankOpts...)
	if err != nil {
		return nil, err
	}
	p.Register(NewDedup(), margin, limiter, rerank)
	return p, nil
}
