package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
)

// DefaultGroqBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// GroqService implements CompletionService against Groq's OpenAI-compatible
// chat completions API through the OpenAI SDK.
type GroqService struct {
	client      openai.Client
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	logger      arbor.ILogger
}

// NewGroqService creates a Groq completion service. An empty apiKey yields an
// unconfigured service.
func NewGroqService(apiKey string, config *common.GroqConfig, logger arbor.ILogger) *GroqService {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}

	service := &GroqService{
		apiKey:      apiKey,
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		timeout:     common.ParseDurationOr(config.Timeout, 60*time.Second),
		logger:      logger,
	}

	if apiKey != "" {
		service.client = openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL+"/"),
			option.WithMaxRetries(0),
		)
		logger.Debug().
			Str("model", config.Model).
			Str("base_url", baseURL).
			Msg("Groq completion service initialized")
	}

	return service
}

// Complete performs one chat completion call
func (s *GroqService) Complete(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	if !s.Configured() {
		return nil, interfaces.ErrCompletionUnavailable
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	completion, err := s.client.Chat.Completions.New(timeoutCtx, s.buildParams(req))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, interfaces.UpstreamError("groq", err)
	}
	if len(completion.Choices) == 0 {
		return nil, interfaces.UpstreamError("groq", fmt.Errorf("no response choices returned"))
	}

	choice := completion.Choices[0]
	result := &interfaces.CompletionResponse{
		Content:    choice.Message.Content,
		Model:      completion.Model,
		StopReason: choice.FinishReason,
	}
	for _, call := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, interfaces.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	s.logger.Debug().
		Str("model", result.Model).
		Int("tool_calls", len(result.ToolCalls)).
		Str("finish_reason", result.StopReason).
		Int64("prompt_tokens", completion.Usage.PromptTokens).
		Int64("completion_tokens", completion.Usage.CompletionTokens).
		Dur("duration", time.Since(start)).
		Msg("Groq completion finished")

	return result, nil
}

// buildParams converts the provider-agnostic request. Tools are only sent
// when the model may call them.
func (s *GroqService) buildParams(req *interfaces.CompletionRequest) openai.ChatCompletionNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	if s.temperature > 0 {
		params.Temperature = openai.Float(float64(s.temperature))
	}

	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case interfaces.RoleTool:
			params.Messages = append(params.Messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case interfaces.RoleAssistant:
			params.Messages = append(params.Messages, assistantMessage(msg))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	if len(req.Tools) > 0 && req.ToolChoice != interfaces.ToolChoiceNone {
		for _, tool := range req.Tools {
			params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.JSONSchema()),
				},
			})
		}
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(interfaces.ToolChoiceAuto)),
		}
	}

	return params
}

// assistantMessage replays an assistant turn. A tool-call turn without text
// carries no content.
func assistantMessage(msg interfaces.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ToolCalls) == 0 {
		return openai.AssistantMessage(msg.Content)
	}

	assistant := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		assistant.Content.OfString = openai.String(msg.Content)
	}
	for _, call := range msg.ToolCalls {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

// Configured reports whether an API key was supplied
func (s *GroqService) Configured() bool {
	return s.apiKey != ""
}

// Provider returns "groq"
func (s *GroqService) Provider() string {
	return string(common.LLMProviderGroq)
}

// Model returns the completion model
func (s *GroqService) Model() string {
	return s.model
}

var _ interfaces.CompletionService = (*GroqService)(nil)
