package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
)

// contentGenerator is the subset of *genai.Models used for completions
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiService implements CompletionService using Gemini function calling.
type GeminiService struct {
	config    *common.GeminiConfig
	logger    arbor.ILogger
	models    contentGenerator
	timeout   time.Duration
	maxTokens int
}

// NewGeminiService creates a Gemini completion service. An empty apiKey
// yields an unconfigured service.
func NewGeminiService(ctx context.Context, apiKey string, geminiConfig *common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	service := &GeminiService{
		config:    geminiConfig,
		logger:    logger,
		timeout:   common.ParseDurationOr(geminiConfig.Timeout, 60*time.Second),
		maxTokens: geminiConfig.MaxTokens,
	}

	if apiKey == "" {
		return service, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	service.models = client.Models

	logger.Debug().
		Str("model", geminiConfig.Model).
		Dur("timeout", service.timeout).
		Msg("Gemini completion service initialized")

	return service, nil
}

// Complete performs one GenerateContent call
func (s *GeminiService) Complete(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	if !s.Configured() {
		return nil, interfaces.ErrCompletionUnavailable
	}

	contents, err := convertMessagesToGemini(req.Messages)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.models.GenerateContent(timeoutCtx, s.config.Model, contents, s.buildConfig(req))
	if err != nil {
		return nil, interfaces.UpstreamError("gemini", err)
	}

	result, err := parseGeminiResponse(resp)
	if err != nil {
		return nil, interfaces.UpstreamError("gemini", err)
	}
	if result.Model == "" {
		result.Model = s.config.Model
	}

	s.logger.Debug().
		Str("model", result.Model).
		Int("tool_calls", len(result.ToolCalls)).
		Dur("duration", time.Since(start)).
		Msg("Gemini completion finished")

	return result, nil
}

func (s *GeminiService) buildConfig(req *interfaces.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	if s.config.Temperature > 0 {
		config.Temperature = genai.Ptr(s.config.Temperature)
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	if len(req.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, tool := range req.Tools {
			declarations = append(declarations, toFunctionDeclaration(tool))
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}

		mode := genai.FunctionCallingConfigModeAuto
		if req.ToolChoice == interfaces.ToolChoiceNone {
			mode = genai.FunctionCallingConfigModeNone
		}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
		}
	}

	return config
}

func toFunctionDeclaration(tool interfaces.ToolDefinition) *genai.FunctionDeclaration {
	properties := make(map[string]*genai.Schema, len(tool.Parameters))
	required := []string{}
	for _, p := range tool.Parameters {
		properties[p.Name] = &genai.Schema{
			Type:        schemaType(p.Type),
			Description: p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return &genai.FunctionDeclaration{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: properties,
			Required:   required,
		},
	}
}

func schemaType(jsonType string) genai.Type {
	switch jsonType {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

// convertMessagesToGemini maps messages to Gemini contents. Assistant tool
// calls become function call parts; consecutive tool results become one
// content of function response parts.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty: %w", interfaces.ErrMalformedInput)
	}

	contents := make([]*genai.Content, 0, len(messages))
	var pending []*genai.Part

	flush := func() {
		if len(pending) > 0 {
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: pending})
			pending = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case interfaces.RoleTool:
			key := "output"
			if msg.IsError {
				key = "error"
			}
			pending = append(pending, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.ToolName,
					Response: map[string]any{key: msg.Content},
				},
			})

		case interfaces.RoleAssistant:
			flush()
			parts := make([]*genai.Part, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := map[string]any{}
				// Malformed arguments are replayed as an empty object
				_ = json.Unmarshal([]byte(call.Arguments), &args)
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: args},
				})
			}
			if len(parts) == 0 {
				parts = append(parts, genai.NewPartFromText(""))
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})

		default:
			flush()
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	flush()

	return contents, nil
}

// parseGeminiResponse collects text and function calls from the first candidate
func parseGeminiResponse(resp *genai.GenerateContentResponse) (*interfaces.CompletionResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates returned")
	}

	candidate := resp.Candidates[0]
	result := &interfaces.CompletionResponse{
		Model:      resp.ModelVersion,
		StopReason: string(candidate.FinishReason),
	}

	var text strings.Builder
	for i, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			arguments := []byte("{}")
			if part.FunctionCall.Args != nil {
				var err error
				if arguments, err = json.Marshal(part.FunctionCall.Args); err != nil {
					return nil, fmt.Errorf("marshal function call args: %w", err)
				}
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			result.ToolCalls = append(result.ToolCalls, interfaces.ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: string(arguments),
			})
			continue
		}
		if !part.Thought {
			text.WriteString(part.Text)
		}
	}
	result.Content = text.String()

	return result, nil
}

// Configured reports whether an API key was supplied
func (s *GeminiService) Configured() bool {
	return s.models != nil
}

// Provider returns "gemini"
func (s *GeminiService) Provider() string {
	return string(common.LLMProviderGemini)
}

// Model returns the completion model
func (s *GeminiService) Model() string {
	return s.config.Model
}

var _ interfaces.CompletionService = (*GeminiService)(nil)
