package openai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
)

// ErrNoChoices is returned when the model produced no completion.
var ErrNoChoices = errors.New("model returned no choices")

// generateJSON sends a system and user prompt and decodes the JSON answer into out.
// Transport errors are returned immediately; malformed answers are retried up to
// maxAttempts times.
func generateJSON(ctx context.Context, client llms.Model, system, user string, maxAttempts int, logger *slog.Logger, out any) error {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		response, err := client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			logger.Error("failed to generate content", "attempt", attempt, "err", err)
			return err
		}
		if len(response.Choices) < 1 {
			return ErrNoChoices
		}

		text, err := extractJSONObject(response.Choices[0].Content)
		if err == nil {
			err = json.Unmarshal([]byte(text), out)
		}
		if err != nil {
			lastErr = err
			logger.Warn("error parsing model response",
				"attempt", attempt,
				"response", truncateRunes(response.Choices[0].Content, 200),
				"err", err)
			continue
		}
		return nil
	}
	return lastErr
}
