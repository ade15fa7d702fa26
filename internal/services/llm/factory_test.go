package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		model string
		want  common.LLMProvider
	}{
		{"", common.LLMProviderGroq},
		{"claude-sonnet-4-20250514", common.LLMProviderClaude},
		{"anthropic/claude-3-haiku", common.LLMProviderClaude},
		{"gemini-2.5-flash", common.LLMProviderGemini},
		{"google/gemini-pro", common.LLMProviderGemini},
		{"meta-llama/llama-4-scout-17b-16e-instruct", common.LLMProviderGroq},
		{"something-else", common.LLMProviderGroq},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectProvider(tt.model, common.LLMProviderGroq))
		})
	}
}

func TestNewCompletionService_SelectsProvider(t *testing.T) {
	t.Setenv("DECOUPLED_GROQ_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("DECOUPLED_CLAUDE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	config := common.NewDefaultConfig()
	ctx := context.Background()

	service, err := NewCompletionService(ctx, config, nil, arbor.NewNoOpLogger())
	require.NoError(t, err)
	assert.Equal(t, "groq", service.Provider())
	assert.False(t, service.Configured())

	config.LLM.DefaultProvider = common.LLMProviderClaude
	config.Claude.APIKey = "sk-ant-test"
	service, err = NewCompletionService(ctx, config, nil, arbor.NewNoOpLogger())
	require.NoError(t, err)
	assert.Equal(t, "claude", service.Provider())
	assert.True(t, service.Configured())

	config.LLM.DefaultProvider = "mystery"
	_, err = NewCompletionService(ctx, config, nil, arbor.NewNoOpLogger())
	assert.Error(t, err)
}
