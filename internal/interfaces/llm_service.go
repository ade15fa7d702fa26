package interfaces

import (
	"context"
)

// Completion message roles. RoleTool carries the result of one tool call.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolChoice controls whether the model may invoke tools on a call.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone forbids tool calls; the model must answer in text.
	ToolChoiceNone ToolChoice = "none"
)

// Message is a single message in a completion conversation.
type Message struct {
	// Role is "user", "assistant" or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// ToolCalls is set on the assistant message that requested tool invocations.
	ToolCalls []ToolCall

	// ToolCallID, ToolName and IsError are set on tool result messages.
	ToolCallID string
	ToolName   string
	IsError    bool
}

// ToolCall is a tool invocation requested by the model. It is consumed within
// a single turn and never persisted.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON text as produced by the model
}

// ToolParameter describes one parameter of a tool.
type ToolParameter struct {
	Name        string
	Type        string // JSON schema type, e.g. "string"
	Description string
	Required    bool
}

// ToolDefinition is an entry in the tool catalog offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

// JSONSchema renders the parameters as a JSON schema object.
func (t ToolDefinition) JSONSchema() map[string]any {
	properties := make(map[string]any, len(t.Parameters))
	required := []string{}
	for _, p := range t.Parameters {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// CompletionRequest is a provider-agnostic completion request.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	ToolChoice   ToolChoice
	MaxTokens    int
}

// CompletionResponse is either terminal text or a non-empty list of tool calls
// (possibly with accompanying text).
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCall
	Model      string
	StopReason string
}

// HasToolCalls reports whether the model requested any tool invocation.
func (r *CompletionResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// CompletionService submits a conversation plus an optional tool catalog to a language model.
type CompletionService interface {
	// Complete performs one completion call. Returns ErrCompletionUnavailable
	// when no credential is configured and ErrUpstreamUnavailable on API failure.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Configured reports whether the provider has a credential.
	Configured() bool

	// Provider is the provider name ("groq", "claude", "gemini").
	Provider() string

	// Model is the model used for completions.
	Model() string
}
