package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"chatter", `Sure! {"a":1} hope that helps`, `{"a":1}`},
		{"trailing commas", `{"a":[1,2,],}`, `{"a":[1,2]}`},
		{"comma inside string kept", `{"a":"x,]"}`, `{"a":"x,]"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONObject(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := extractJSONObject("no json here")
	assert.ErrorIs(t, err, errNoJSONObject)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "发票…", truncateRunes("发票信息", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 0))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, clampScore(-0.4))
	assert.Equal(t, 1.0, clampScore(3))
	assert.Equal(t, 0.5, clampScore(0.5))
}
