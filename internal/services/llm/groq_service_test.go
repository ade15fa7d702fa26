package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
)

var searchTool = interfaces.ToolDefinition{
	Name:        "search_articles",
	Description: "Search the knowledge base.",
	Parameters: []interfaces.ToolParameter{
		{Name: "query", Type: "string", Description: "The search query.", Required: true},
	},
}

func newGroqTestServer(t *testing.T, response string, captured *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server
}

func newGroqForTest(baseURL, apiKey string) *GroqService {
	return NewGroqService(apiKey, &common.GroqConfig{
		BaseURL:   baseURL,
		Model:     "meta-llama/llama-4-scout-17b-16e-instruct",
		MaxTokens: 2048,
	}, arbor.NewNoOpLogger())
}

func TestGroqService_ToolCallResponse(t *testing.T) {
	var captured map[string]any
	server := newGroqTestServer(t, `{
		"model": "meta-llama/llama-4-scout-17b-16e-instruct",
		"choices": [{
			"message": {
				"content": null,
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "search_articles", "arguments": "{\"query\":\"caching\"}"}}]
			},
			"finish_reason": "tool_calls"
		}]
	}`, &captured)

	service := newGroqForTest(server.URL, "gsk-test")
	resp, err := service.Complete(context.Background(), &interfaces.CompletionRequest{
		SystemPrompt: "system",
		Messages:     []interfaces.Message{{Role: interfaces.RoleUser, Content: "How do I cache?"}},
		Tools:        []interfaces.ToolDefinition{searchTool},
		ToolChoice:   interfaces.ToolChoiceAuto,
	})
	require.NoError(t, err)

	require.True(t, resp.HasToolCalls())
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "search_articles", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"caching"}`, resp.ToolCalls[0].Arguments)
	assert.Empty(t, resp.Content)

	assert.Equal(t, "auto", captured["tool_choice"])
	assert.EqualValues(t, 2048, captured["max_tokens"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	tools := captured["tools"].([]any)
	require.Len(t, tools, 1)
	function := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "search_articles", function["name"])
}

func TestGroqService_SecondCallOmitsTools(t *testing.T) {
	var captured map[string]any
	server := newGroqTestServer(t, `{"choices": [{"message": {"content": "Answer"}, "finish_reason": "stop"}]}`, &captured)

	service := newGroqForTest(server.URL, "gsk-test")
	resp, err := service.Complete(context.Background(), &interfaces.CompletionRequest{
		Messages: []interfaces.Message{
			{Role: interfaces.RoleUser, Content: "How do I cache?"},
			{Role: interfaces.RoleAssistant, ToolCalls: []interfaces.ToolCall{{ID: "call_1", Name: "search_articles", Arguments: `{"query":"caching"}`}}},
			{Role: interfaces.RoleTool, ToolCallID: "call_1", ToolName: "search_articles", Content: "**Caching** (Performance)\nAll about caches"},
		},
		Tools:      []interfaces.ToolDefinition{searchTool},
		ToolChoice: interfaces.ToolChoiceNone,
	})
	require.NoError(t, err)
	assert.Equal(t, "Answer", resp.Content)
	assert.False(t, resp.HasToolCalls())

	_, hasTools := captured["tools"]
	assert.False(t, hasTools)
	_, hasChoice := captured["tool_choice"]
	assert.False(t, hasChoice)

	messages := captured["messages"].([]any)
	require.Len(t, messages, 3)
	assistant := messages[1].(map[string]any)
	assert.Nil(t, assistant["content"])
	assert.Len(t, assistant["tool_calls"].([]any), 1)
	tool := messages[2].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_1", tool["tool_call_id"])
}

func TestGroqService_Errors(t *testing.T) {
	unconfigured := newGroqForTest("http://unused", "")
	assert.False(t, unconfigured.Configured())
	_, err := unconfigured.Complete(context.Background(), &interfaces.CompletionRequest{})
	assert.ErrorIs(t, err, interfaces.ErrCompletionUnavailable)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit"}}`))
	}))
	defer server.Close()

	service := newGroqForTest(server.URL, "gsk-test")
	_, err = service.Complete(context.Background(), &interfaces.CompletionRequest{
		Messages: []interfaces.Message{{Role: interfaces.RoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, interfaces.ErrUpstreamUnavailable)
	// A rate limit surfaces on the first response
	assert.Equal(t, int32(1), calls.Load())
}
