package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenUsageEmpty(t *testing.T) {
	assert.True(t, TokenUsage{Model: "gemini-2.0-flash"}.Empty())
	assert.False(t, TokenUsage{PromptTokens: 10}.Empty())
	assert.False(t, TokenUsage{TotalTokens: 3}.Empty())
}

func TestNewAgentMeta(t *testing.T) {
	start := time.Now().Add(-50 * time.Millisecond)
	meta := NewAgentMeta(AgentExtractor, TokenUsage{PromptTokens: 5, TotalTokens: 5}, start)
	assert.Equal(t, AgentExtractor, meta.AgentName)
	assert.Equal(t, 5, meta.Usage.PromptTokens)
	assert.GreaterOrEqual(t, meta.Latency, 50*time.Millisecond)
}
