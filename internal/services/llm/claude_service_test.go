package llm

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
)

func TestConvertMessagesToClaude_GroupsToolResults(t *testing.T) {
	messages, err := convertMessagesToClaude([]interfaces.Message{
		{Role: interfaces.RoleUser, Content: "Compare caching and routing"},
		{Role: interfaces.RoleAssistant, ToolCalls: []interfaces.ToolCall{
			{ID: "t1", Name: "search_articles", Arguments: `{"query":"caching"}`},
			{ID: "t2", Name: "search_articles", Arguments: `{not json`},
		}},
		{Role: interfaces.RoleTool, ToolCallID: "t1", Content: "results"},
		{Role: interfaces.RoleTool, ToolCallID: "t2", Content: "bad arguments", IsError: true},
	})
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Equal(t, anthropic.MessageParamRoleUser, messages[0].Role)

	assistant := messages[1]
	assert.Equal(t, anthropic.MessageParamRoleAssistant, assistant.Role)
	require.Len(t, assistant.Content, 2)
	require.NotNil(t, assistant.Content[0].OfToolUse)
	assert.Equal(t, "t1", assistant.Content[0].OfToolUse.ID)
	assert.Equal(t, json.RawMessage(`{"query":"caching"}`), assistant.Content[0].OfToolUse.Input)
	// Malformed arguments are replayed as an empty object
	assert.Equal(t, json.RawMessage(`{}`), assistant.Content[1].OfToolUse.Input)

	results := messages[2]
	assert.Equal(t, anthropic.MessageParamRoleUser, results.Role)
	require.Len(t, results.Content, 2)
	require.NotNil(t, results.Content[0].OfToolResult)
	assert.Equal(t, "t1", results.Content[0].OfToolResult.ToolUseID)
	assert.Equal(t, "t2", results.Content[1].OfToolResult.ToolUseID)
}

func TestConvertMessagesToClaude_Empty(t *testing.T) {
	_, err := convertMessagesToClaude(nil)
	assert.ErrorIs(t, err, interfaces.ErrMalformedInput)
}

func TestClaudeService_BuildParamsToolChoice(t *testing.T) {
	service := NewClaudeService("", &common.ClaudeConfig{Model: "claude-sonnet-4-20250514", MaxTokens: 1024}, arbor.NewNoOpLogger())

	req := &interfaces.CompletionRequest{
		SystemPrompt: "system",
		Messages:     []interfaces.Message{{Role: interfaces.RoleUser, Content: "hi"}},
		Tools:        []interfaces.ToolDefinition{searchTool},
		ToolChoice:   interfaces.ToolChoiceAuto,
	}

	params, err := service.buildParams(req)
	require.NoError(t, err)
	assert.EqualValues(t, 1024, params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "system", params.System[0].Text)
	require.Len(t, params.Tools, 1)
	require.NotNil(t, params.Tools[0].OfTool)
	assert.Equal(t, "search_articles", params.Tools[0].OfTool.Name)
	assert.Equal(t, []string{"query"}, params.Tools[0].OfTool.InputSchema.Required)
	assert.NotNil(t, params.ToolChoice.OfAuto)

	req.ToolChoice = interfaces.ToolChoiceNone
	params, err = service.buildParams(req)
	require.NoError(t, err)
	// Catalog stays declared, but the model may not call it
	assert.Len(t, params.Tools, 1)
	assert.NotNil(t, params.ToolChoice.OfNone)
	assert.Nil(t, params.ToolChoice.OfAuto)
}

func TestParseClaudeResponse(t *testing.T) {
	resp := &anthropic.Message{
		Model: anthropic.Model("claude-sonnet-4-20250514"),
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "Let me search."},
			{Type: "tool_use", ID: "toolu_1", Name: "search_articles", Input: json.RawMessage(`{"query":"react hooks"}`)},
		},
	}

	result := parseClaudeResponse(resp)
	assert.Equal(t, "Let me search.", result.Content)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "toolu_1", result.ToolCalls[0].ID)
	assert.JSONEq(t, `{"query":"react hooks"}`, result.ToolCalls[0].Arguments)
}

func TestClaudeService_Unconfigured(t *testing.T) {
	service := NewClaudeService("", &common.ClaudeConfig{Model: "claude-sonnet-4-20250514"}, arbor.NewNoOpLogger())
	assert.False(t, service.Configured())
	assert.Equal(t, "claude", service.Provider())
}
