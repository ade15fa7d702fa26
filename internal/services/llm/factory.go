package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
)

// DetectProvider determines the provider from a model string.
// Model strings can be:
//   - "claude-sonnet-4-20250514" or "claude/..." -> Claude
//   - "gemini-2.5-flash" or "gemini/..." -> Gemini
//   - "groq/..." or any Llama/Mixtral model -> Groq
//   - empty -> fallback
func DetectProvider(model string, fallback common.LLMProvider) common.LLMProvider {
	model = strings.ToLower(strings.TrimSpace(model))
	switch {
	case model == "":
		return fallback
	case strings.HasPrefix(model, "claude"), strings.HasPrefix(model, "anthropic/"):
		return common.LLMProviderClaude
	case strings.HasPrefix(model, "gemini"), strings.HasPrefix(model, "google/"):
		return common.LLMProviderGemini
	case strings.HasPrefix(model, "groq/"),
		strings.HasPrefix(model, "meta-llama/"),
		strings.HasPrefix(model, "llama"),
		strings.HasPrefix(model, "mixtral"):
		return common.LLMProviderGroq
	default:
		return fallback
	}
}

// NewCompletionService builds the completion adapter for llm.default_provider.
// Credentials resolve env -> KV -> config; a missing credential produces an
// unconfigured service rather than an error so the server can still start.
func NewCompletionService(ctx context.Context, config *common.Config, kv interfaces.KeyValueStorage, logger arbor.ILogger) (interfaces.CompletionService, error) {
	provider := config.LLM.DefaultProvider
	if provider == "" {
		provider = common.LLMProviderGroq
	}

	var service interfaces.CompletionService
	switch provider {
	case common.LLMProviderGroq:
		apiKey, _ := common.ResolveAPIKey(ctx, kv, common.KeyGroqAPIKey, config.Groq.APIKey)
		service = NewGroqService(apiKey, &config.Groq, logger)

	case common.LLMProviderClaude:
		apiKey, _ := common.ResolveAPIKey(ctx, kv, common.KeyAnthropicAPIKey, config.Claude.APIKey)
		service = NewClaudeService(apiKey, &config.Claude, logger)

	case common.LLMProviderGemini:
		apiKey, _ := common.ResolveAPIKey(ctx, kv, common.KeyGeminiAPIKey, config.Gemini.APIKey)
		gemini, err := NewGeminiService(ctx, apiKey, &config.Gemini, logger)
		if err != nil {
			return nil, err
		}
		service = gemini

	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", provider)
	}

	if !service.Configured() {
		logger.Warn().
			Str("provider", service.Provider()).
			Msg("Completion provider API key not configured, chat unavailable")
	}

	return service, nil
}
