// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/poiesic/ragrouter/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// maxExamplesPerCandidate bounds prompt size for nodes with long example lists.
const maxExamplesPerCandidate = 5

// IntentScorer implements ai.IntentScorer with a chat model judging all candidates in one call.
type IntentScorer struct {
	client      llms.Model
	maxAttempts int
	logger      *slog.Logger
}

var _ ai.IntentScorer = (*IntentScorer)(nil)

type scoringCandidate struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Description string   `json:"description,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

type scoringRequest struct {
	Query      string             `json:"query"`
	Candidates []scoringCandidate `json:"candidates"`
}

type scoredIntent struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type scoringResponse struct {
	Scores []scoredIntent `json:"scores"`
}

func newIntentScorer(config *ai.Config) (*IntentScorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ClassifierHost),
		openai.WithToken(config.Token),
		openai.WithModel(config.ClassifierModel),
	)
	if err != nil {
		return nil, err
	}
	return newIntentScorerWithModel(client, config.MaxAttempts), nil
}

func newIntentScorerWithModel(client llms.Model, maxAttempts int) *IntentScorer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &IntentScorer{
		client:      client,
		maxAttempts: maxAttempts,
		logger:      slog.Default().With("component", "openai-intent-scorer"),
	}
}

// NewIntentScorer creates an intent scorer from the given configuration.
func NewIntentScorer(config *ai.Config) (ai.IntentScorer, error) {
	return newIntentScorer(config)
}

// ScoreIntents asks the model for a relevance score per candidate.
func (s *IntentScorer) ScoreIntents(ctx context.Context, query string, candidates []ai.IntentCandidate) ([]ai.IntentScore, error) {
	if len(candidates) == 0 {
		return []ai.IntentScore{}, nil
	}

	req := scoringRequest{
		Query:      query,
		Candidates: make([]scoringCandidate, len(candidates)),
	}
	for i, c := range candidates {
		examples := c.Examples
		if len(examples) > maxExamplesPerCandidate {
			examples = examples[:maxExamplesPerCandidate]
		}
		req.Candidates[i] = scoringCandidate{
			ID:          c.ID,
			Path:        c.Path,
			Description: truncateRunes(c.Description, 300),
			Examples:    examples,
		}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var resp scoringResponse
	if err := generateJSON(ctx, s.client, intentScoringPrompt, string(payload), s.maxAttempts, s.logger, &resp); err != nil {
		return nil, err
	}

	scores := filterScores(resp.Scores, candidates)
	s.logger.Debug("scored intents", "candidates", len(candidates), "returned", len(scores))
	return scores, nil
}

// filterScores keeps one clamped score per known candidate id, first answer wins.
func filterScores(raw []scoredIntent, candidates []ai.IntentCandidate) []ai.IntentScore {
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
	}

	seen := make(map[string]bool, len(raw))
	scores := make([]ai.IntentScore, 0, len(raw))
	for _, r := range raw {
		if !known[r.ID] || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		scores = append(scores, ai.IntentScore{ID: r.ID, Score: clampScore(r.Score)})
	}
	return scores
}
