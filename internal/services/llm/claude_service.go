package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
)

// ClaudeService implements CompletionService using the Anthropic Messages API
// with tool use.
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	apiKey    string
	timeout   time.Duration
	maxTokens int
}

// NewClaudeService creates a new Claude completion service.
//
// Parameters:
//   - apiKey: resolved Anthropic key; empty yields an unconfigured service
//   - claudeConfig: model, token and timeout settings
//   - logger: structured logger for service operations
func NewClaudeService(apiKey string, claudeConfig *common.ClaudeConfig, logger arbor.ILogger) *ClaudeService {
	maxTokens := claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	service := &ClaudeService{
		config:    claudeConfig,
		logger:    logger,
		apiKey:    apiKey,
		timeout:   common.ParseDurationOr(claudeConfig.Timeout, 60*time.Second),
		maxTokens: maxTokens,
	}

	if apiKey != "" {
		service.client = anthropic.NewClient(option.WithAPIKey(apiKey))
		logger.Debug().
			Str("model", claudeConfig.Model).
			Dur("timeout", service.timeout).
			Int("max_tokens", maxTokens).
			Msg("Claude completion service initialized")
	}

	return service
}

// Complete performs one Messages API call.
//
// Tool results are grouped into a single user message of tool_result blocks.
// With ToolChoiceNone the tool catalog is still declared because the API
// rejects tool blocks in history without matching declarations.
func (s *ClaudeService) Complete(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	if !s.Configured() {
		return nil, interfaces.ErrCompletionUnavailable
	}

	params, err := s.buildParams(req)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return nil, interfaces.UpstreamError("claude", err)
	}

	result := parseClaudeResponse(resp)

	s.logger.Debug().
		Str("model", result.Model).
		Int("tool_calls", len(result.ToolCalls)).
		Str("stop_reason", result.StopReason).
		Dur("duration", time.Since(start)).
		Msg("Claude completion finished")

	return result, nil
}

// buildParams converts the provider-agnostic request into MessageNewParams
func (s *ClaudeService) buildParams(req *interfaces.CompletionRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertMessagesToClaude(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}

	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}

	if len(req.Tools) > 0 {
		for _, tool := range req.Tools {
			schema := tool.JSONSchema()
			required, _ := schema["required"].([]string)
			params.Tools = append(params.Tools, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        tool.Name,
					Description: anthropic.String(tool.Description),
					InputSchema: anthropic.ToolInputSchemaParam{
						Properties: schema["properties"],
						Required:   required,
					},
				},
			})
		}

		if req.ToolChoice == interfaces.ToolChoiceNone {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		} else {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	return params, nil
}

// convertMessagesToClaude maps messages to Claude's alternating user/assistant
// format. Consecutive tool results collapse into one user message.
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty: %w", interfaces.ErrMalformedInput)
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case interfaces.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))

		case interfaces.RoleAssistant:
			flushResults()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    call.ID,
						Name:  call.Name,
						Input: toolInput(call.Arguments),
					},
				})
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(blocks...))

		default:
			flushResults()
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	flushResults()

	return claudeMessages, nil
}

// toolInput passes valid JSON arguments through untouched; anything else
// becomes an empty object so the history stays well-formed.
func toolInput(arguments string) json.RawMessage {
	if strings.TrimSpace(arguments) != "" && json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	return json.RawMessage(`{}`)
}

// parseClaudeResponse collects text and tool_use blocks
func parseClaudeResponse(resp *anthropic.Message) *interfaces.CompletionResponse {
	result := &interfaces.CompletionResponse{
		Model:      string(resp.Model),
		StopReason: string(resp.StopReason),
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			arguments := string(block.Input)
			if arguments == "" {
				arguments = "{}"
			}
			result.ToolCalls = append(result.ToolCalls, interfaces.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: arguments,
			})
		}
	}
	result.Content = text.String()

	return result
}

// Configured reports whether an API key was supplied
func (s *ClaudeService) Configured() bool {
	return s.apiKey != ""
}

// Provider returns "claude"
func (s *ClaudeService) Provider() string {
	return string(common.LLMProviderClaude)
}

// Model returns the completion model
func (s *ClaudeService) Model() string {
	return s.config.Model
}

var _ interfaces.CompletionService = (*ClaudeService)(nil)
