package turn

import (
	"context"
	"testing"

	"github.com/code-100-precent/LingCare/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func user(text string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleAssistant, Content: "How is your pain today?"},
		{Role: llm.RoleUser, Content: text},
	}
}

func TestPredictEndOfTurn(t *testing.T) {
	m := NewMultilingualModel()
	ctx := context.Background()
	threshold := m.UnlikelyThreshold("en")

	cases := []struct {
		text     string
		complete bool
	}{
		{"It's about a seven in my lower back.", true},
		{"Is that normal?", true},
		{"seven", true},
		{"它在下背部。", true},
		{"It started yesterday and", false},
		{"I slept maybe five hours but", false},
		{"The pain is sharp,", false},
		{"然后", false},
	}
	for _, c := range cases {
		p, err := m.PredictEndOfTurn(ctx, user(c.text))
		require.NoError(t, err)
		if c.complete {
			assert.GreaterOrEqual(t, p, threshold, c.text)
		} else {
			assert.Less(t, p, threshold, c.text)
		}
	}
}

func TestPredictUsesLastUserMessage(t *testing.T) {
	m := NewMultilingualModel()
	p, err := m.PredictEndOfTurn(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "and"},
		{Role: llm.RoleUser, Content: "That's all."},
		{Role: llm.RoleAssistant, Content: "Thanks"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.85, p)

	p, err = m.PredictEndOfTurn(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, p)
}

func TestPredictCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMultilingualModel().PredictEndOfTurn(ctx, user("hi."))
	assert.Error(t, err)
}

func TestUnlikelyThreshold(t *testing.T) {
	m := NewMultilingualModel()
	assert.Equal(t, 0.25, m.UnlikelyThreshold("en-US"))
	assert.Equal(t, 0.3, m.UnlikelyThreshold("multi"))
}
