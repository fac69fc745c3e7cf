package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/poiesic/ragrouter/ai"
	"github.com/poiesic/ragrouter/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// maxPassageRunes bounds each passage in the rerank prompt.
const maxPassageRunes = 800

// Reranker implements ai.Reranker as a listwise judgement by a chat model.
type Reranker struct {
	client      llms.Model
	maxAttempts int
	logger      *slog.Logger
}

var _ ai.Reranker = (*Reranker)(nil)

type rerankPassage struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type rerankRequest struct {
	Question string          `json:"question"`
	Passages []rerankPassage `json:"passages"`
}

type rankedPassage struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type rerankResponse struct {
	Ranking []rankedPassage `json:"ranking"`
}

func newReranker(config *ai.Config) (*Reranker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.RerankHost),
		openai.WithToken(config.Token),
		openai.WithModel(config.RerankModel),
	)
	if err != nil {
		return nil, err
	}
	return newRerankerWithModel(client, config.MaxAttempts), nil
}

func newRerankerWithModel(client llms.Model, maxAttempts int) *Reranker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Reranker{
		client:      client,
		maxAttempts: maxAttempts,
		logger:      slog.Default().With("component", "openai-reranker"),
	}
}

// NewReranker creates a reranker from the given configuration.
func NewReranker(config *ai.Config) (ai.Reranker, error) {
	return newReranker(config)
}

// Rerank scores every candidate with the model and returns the best topN.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []core.RetrievedChunk, topN int) ([]core.RetrievedChunk, error) {
	if len(candidates) == 0 || topN <= 0 {
		return []core.RetrievedChunk{}, nil
	}

	req := rerankRequest{
		Question: query,
		Passages: make([]rerankPassage, len(candidates)),
	}
	for i, c := range candidates {
		req.Passages[i] = rerankPassage{Index: i, Text: truncateRunes(c.Text, maxPassageRunes)}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var resp rerankResponse
	if err := generateJSON(ctx, r.client, rerankPrompt, string(payload), r.maxAttempts, r.logger, &resp); err != nil {
		return nil, err
	}

	ranked := applyRanking(candidates, resp.Ranking, topN)
	r.logger.Debug("reranked chunks", "candidates", len(candidates), "returned", len(ranked))
	return ranked, nil
}

// applyRanking maps model indexes back onto candidates. Invalid and repeated indexes
// are dropped; candidates the model skipped follow in their original order so the
// result only shrinks when there are fewer than topN candidates.
func applyRanking(candidates []core.RetrievedChunk, ranking []rankedPassage, topN int) []core.RetrievedChunk {
	used := make([]bool, len(candidates))
	valid := make([]rankedPassage, 0, len(ranking))
	for _, rp := range ranking {
		if rp.Index < 0 || rp.Index >= len(candidates) || used[rp.Index] {
			continue
		}
		used[rp.Index] = true
		valid = append(valid, rankedPassage{Index: rp.Index, Score: clampScore(rp.Score)})
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Score > valid[j].Score
	})

	limit := min(topN, len(candidates))
	out := make([]core.RetrievedChunk, 0, limit)
	for _, rp := range valid {
		if len(out) == limit {
			return out
		}
		chunk := candidates[rp.Index]
		chunk.Score = rp.Score
		out = append(out, chunk)
	}
	for i, c := range candidates {
		if len(out) == limit {
			break
		}
		if !used[i] {
			c.Score = 0
			out = append(out, c)
		}
	}
	return out
}
