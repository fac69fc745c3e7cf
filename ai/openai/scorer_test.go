package openai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/ragrouter/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel replays canned answers, one per GenerateContent call.
type fakeModel struct {
	answers  []string
	err      error
	calls    int
	lastUser string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for _, m := range messages {
		if m.Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, p := range m.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				f.lastUser = tp.Text
			}
		}
	}
	idx := f.calls - 1
	if idx >= len(f.answers) {
		idx = len(f.answers) - 1
	}
	if idx < 0 {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.answers[idx]}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func invoiceCandidates() []ai.IntentCandidate {
	return []ai.IntentCandidate{
		{ID: "fin-invoice-info", Path: "财务 > 发票 > 发票信息", Description: "开票抬头、税号"},
		{ID: "fin-reimburse", Path: "财务 > 报销 > 报销流程"},
	}
}

func TestIntentScorer_ScoreIntents(t *testing.T) {
	t.Run("parses scores and ignores unknown ids", func(t *testing.T) {
		model := &fakeModel{answers: []string{
			"```json\n{\"scores\":[{\"id\":\"fin-invoice-info\",\"score\":0.92},{\"id\":\"ghost\",\"score\":0.99},{\"id\":\"fin-reimburse\",\"score\":1.7},]}\n```",
		}}
		scorer := newIntentScorerWithModel(model, 3)

		scores, err := scorer.ScoreIntents(context.Background(), "开票抬头写什么", invoiceCandidates())
		require.NoError(t, err)
		require.Len(t, scores, 2)
		assert.Equal(t, "fin-invoice-info", scores[0].ID)
		assert.InDelta(t, 0.92, scores[0].Score, 1e-9)
		assert.Equal(t, "fin-reimburse", scores[1].ID)
		assert.Equal(t, 1.0, scores[1].Score)
		assert.Contains(t, model.lastUser, "开票抬头写什么")
		assert.Contains(t, model.lastUser, "fin-invoice-info")
	})

	t.Run("retries malformed answers", func(t *testing.T) {
		model := &fakeModel{answers: []string{
			"I think it is about invoices",
			`{"scores":[{"id":"fin-invoice-info","score":0.8}]}`,
		}}
		scorer := newIntentScorerWithModel(model, 3)

		scores, err := scorer.ScoreIntents(context.Background(), "q", invoiceCandidates())
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.Equal(t, 2, model.calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		model := &fakeModel{answers: []string{"nope"}}
		scorer := newIntentScorerWithModel(model, 2)

		_, err := scorer.ScoreIntents(context.Background(), "q", invoiceCandidates())
		require.Error(t, err)
		assert.Equal(t, 2, model.calls)
	})

	t.Run("transport error is not retried", func(t *testing.T) {
		boom := errors.New("connection refused")
		model := &fakeModel{err: boom}
		scorer := newIntentScorerWithModel(model, 3)

		_, err := scorer.ScoreIntents(context.Background(), "q", invoiceCandidates())
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("no candidates skips the model", func(t *testing.T) {
		model := &fakeModel{}
		scorer := newIntentScorerWithModel(model, 3)

		scores, err := scorer.ScoreIntents(context.Background(), "q", nil)
		require.NoError(t, err)
		assert.Empty(t, scores)
		assert.Equal(t, 0, model.calls)
	})

	t.Run("no choices", func(t *testing.T) {
		model := &fakeModel{}
		scorer := newIntentScorerWithModel(model, 3)

		_, err := scorer.ScoreIntents(context.Background(), "q", invoiceCandidates())
		require.ErrorIs(t, err, ErrNoChoices)
	})

	t.Run("long examples are trimmed", func(t *testing.T) {
		model := &fakeModel{answers: []string{`{"scores":[]}`}}
		scorer := newIntentScorerWithModel(model, 1)
		cand := ai.IntentCandidate{ID: "x", Path: "x"}
		for i := 0; i < 10; i++ {
			cand.Examples = append(cand.Examples, "example-"+string(rune('a'+i)))
		}

		_, err := scorer.ScoreIntents(context.Background(), "q", []ai.IntentCandidate{cand})
		require.NoError(t, err)
		assert.True(t, strings.Contains(model.lastUser, "example-e"))
		assert.False(t, strings.Contains(model.lastUser, "example-f"))
	})
}
