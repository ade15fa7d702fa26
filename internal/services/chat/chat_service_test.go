package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

// scriptedCompletion returns the queued responses in order and records every request
type scriptedCompletion struct {
	mu         sync.Mutex
	configured bool
	responses  []*interfaces.CompletionResponse
	errs       []error
	requests   []*interfaces.CompletionRequest
	onCall     func(call int)
}

func (c *scriptedCompletion) Complete(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	c.mu.Lock()
	call := len(c.requests)
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.onCall != nil {
		c.onCall(call)
	}
	if call < len(c.errs) && c.errs[call] != nil {
		return nil, c.errs[call]
	}
	if call >= len(c.responses) {
		return &interfaces.CompletionResponse{}, nil
	}
	return c.responses[call], nil
}

func (c *scriptedCompletion) Configured() bool { return c.configured }
func (c *scriptedCompletion) Provider() string { return "scripted" }
func (c *scriptedCompletion) Model() string    { return "scripted-model" }

// fakeSearch answers by query and records the calls it receives
type fakeSearch struct {
	mu      sync.Mutex
	results map[string][]models.SearchResult
	delays  map[string]time.Duration
	err     error
	queries []string
	limits  []int
}

func (f *fakeSearch) Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	if delay, ok := f.delays[query]; ok {
		time.Sleep(delay)
	}
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.limits = append(f.limits, topK)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

func (f *fakeSearch) Configured() bool { return true }

func result(id, title, category, summary string) models.SearchResult {
	return models.SearchResult{
		ID:    id,
		Score: 0.5,
		Article: models.Article{
			ID:       id,
			Title:    title,
			Category: category,
			Summary:  summary,
			Tags:     []string{},
		},
	}
}

func toolResponse(calls ...interfaces.ToolCall) *interfaces.CompletionResponse {
	return &interfaces.CompletionResponse{ToolCalls: calls}
}

func searchCall(id, arguments string) interfaces.ToolCall {
	return interfaces.ToolCall{ID: id, Name: SearchToolName, Arguments: arguments}
}

func newTestService(completion *scriptedCompletion, search *fakeSearch, parallel bool) *Service {
	return NewService(completion, search, &common.ChatConfig{
		SearchLimit:   5,
		ParallelTools: parallel,
		MaxTokens:     2048,
		Timeout:       "10s",
	}, arbor.NewNoOpLogger())
}

func userTurn(content string) []models.ChatMessage {
	return []models.ChatMessage{{Role: models.RoleUser, Content: content}}
}

func TestChat_PlainTextTurn(t *testing.T) {
	completion := &scriptedCompletion{configured: true, responses: []*interfaces.CompletionResponse{
		{Content: "Hello! Ask me about web development."},
	}}
	search := &fakeSearch{}
	service := newTestService(completion, search, false)

	reply, err := service.Chat(context.Background(), userTurn("hello"))
	require.NoError(t, err)

	assert.Equal(t, "Hello! Ask me about web development.", reply.Message)
	assert.NotNil(t, reply.Sources)
	assert.Empty(t, reply.Sources)
	assert.Len(t, completion.requests, 1)
	assert.Empty(t, search.queries)

	first := completion.requests[0]
	assert.Equal(t, SystemPrompt, first.SystemPrompt)
	assert.Equal(t, interfaces.ToolChoiceAuto, first.ToolChoice)
	require.Len(t, first.Tools, 1)
	assert.Equal(t, SearchToolName, first.Tools[0].Name)
}

func TestChat_ToolTurnWithTwoArticles(t *testing.T) {
	completion := &scriptedCompletion{configured: true, responses: []*interfaces.CompletionResponse{
		toolResponse(searchCall("call_1", `{"query":"caching"}`)),
		{Content: "Here is how caching works."},
	}}
	search := &fakeSearch{results: map[string][]models.SearchResult{
		"caching": {
			result("a1", "Caching 101", "Performance", "Basics of caching"),
			result("a2", "CDN Caching", "Infrastructure", "Edge caches"),
		},
	}}
	service := newTestService(completion, search, false)

	reply, err := service.Chat(context.Background(), userTurn("How does caching work?"))
	require.NoError(t, err)

	assert.Equal(t, "Here is how caching works.", reply.Message)
	require.Len(t, reply.Sources, 2)
	assert.Equal(t, "a1", reply.Sources[0].ID)
	assert.Equal(t, "a2", reply.Sources[1].ID)
	assert.Equal(t, []int{5}, search.limits)

	require.Len(t, completion.requests, 2)
	second := completion.requests[1]
	assert.Equal(t, interfaces.ToolChoiceNone, second.ToolChoice)
	require.Len(t, second.Messages, 3)

	assistant := second.Messages[1]
	assert.Equal(t, interfaces.RoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call_1", assistant.ToolCalls[0].ID)

	tool := second.Messages[2]
	assert.Equal(t, interfaces.RoleTool, tool.Role)
	assert.Equal(t, "call_1", tool.ToolCallID)
	assert.False(t, tool.IsError)
	assert.Equal(t, "**Caching 101** (Performance)\nBasics of caching\n\n**CDN Caching** (Infrastructure)\nEdge caches", tool.Content)
}

func TestChat_DeduplicatesAcrossToolCalls(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		completion := &scriptedCompletion{configured: true, responses: []*interfaces.CompletionResponse{
			toolResponse(searchCall("c1", `{"query":"react"}`), searchCall("c2", `{"query":"hooks"}`)),
			{Content: "answer"},
		}}
		search := &fakeSearch{results: map[string][]models.SearchResult{
			"react": {result("a1", "React", "Frontend", ""), result("a2", "Hooks", "Frontend", "")},
			"hooks": {result("a2", "Hooks", "Frontend", ""), result("a3", "Custom Hooks", "Frontend", "")},
		}}
		service := newTestService(completion, search, parallel)

		reply, err := service.Chat(context.Background(), userTurn("react hooks"))
		require.NoError(t, err)

		ids := make([]string, 0, len(reply.Sources))
		for _, source := range reply.Sources {
			ids = append(ids, source.ID)
		}
		assert.Equal(t, []string{"a1", "a2", "a3"}, ids, "parallel=%v", parallel)
	}
}

func TestChat_ParallelPreservesCallOrder(t *testing.T) {
	completion := &scriptedCompletion{configured: true, responses: []*interfaces.CompletionResponse{
		toolResponse(searchCall("slow", `{"query":"slow"}`), searchCall("fast", `{"query":"fast"}`)),
		{Content: "answer"},
	}}
	search := &fakeSearch{
		results: map[string][]models.SearchResult{
			"slow": {result("s1", "Slow", "A", "")},
			"fast": {result("f1", "Fast", "B", "")},
		},
		delays: map[string]time.Duration{"slow": 50 * time.Millisecond},
	}
	service := newTestService(completion, search, true)

	reply, err := service.Chat(context.Background(), userTurn("both"))
	require.NoError(t, err)

	// The fast search completes first, but output follows the call order
	assert.Equal(t, []string{"fast", "slow"}, search.queries)
	require.Len(t, reply.Sources, 2)
	assert.Equal(t, "s1", reply.Sources[0].ID)
	assert.Equal(t, "f1", reply.Sources[1].ID)

	second := completion.requests[1]
	require.Len(t, second.Messages, 4)
	assert.Equal(t, "slow", second.Messages[2].ToolCallID)
	assert.Equal(t, "fast", second.Messages[3].ToolCallID)
}

func TestChat_MalformedArgumentsContinueTurn(t *testing.T) {
	completion := &scriptedCompletion{configured: true, responses: []*interfaces.CompletionResponse{
		toolResponse(searchCall("bad", `{not json`), searchCall("missing", `{"q":"x"}`)),
		{Content: "I could not search, but here is what I know."},
	}}
	search := &fakeSearch{}
	service := newTestService(completion, search, false)

	reply, err := service.Chat(context.Background(), userTurn("question"))
	require.NoError(t, err)

	assert.Equal(t, "I could not search, but here is what I know.", reply.Message)
	assert.Empty(t, reply.Sources)
	assert.Empty(t, search.queries)

	second := completion.requests[1]
	require.Len(t, second.Messages, 4)
	for _, msg := range second.Messages[2:] {
		assert.Equal(t, interfaces.RoleTool, msg.Role)
		assert.True(t, msg.IsError)
		assert.Contains(t, msg.Content, "invalid arguments")
	}
}

func TestChat_UnknownToolYieldsErrorPayload(t *testing.T) {
	completion := &scriptedCompletion{configured: true, responses: []*interfaces.CompletionResponse{
		toolResponse(interfaces.ToolCall{ID: "x", Name: "delete_everything", Arguments: `{}`}),
		{Content: "answer"},
	}}
	service := newTestService(completion, &fakeSearch{}, false)

	reply, err := service.Chat(context.Background(), userTurn("question"))
	require.NoError(t, err)
	assert.Equal(t, "answer", reply.Message)

	tool := completion.requests[1].Messages[2]
	assert.True(t, tool.IsError)
	assert.Contains(t, tool.Content, "unknown tool")
}

func TestChat_EmptySearchResults(t *testing.T) {
	completion := &scriptedCompletion{configured: true, responses: []*interfaces.CompletionResponse{
		toolResponse(searchCall("c1", `{"query":"quantum"}`)),
		{Content: "The knowledge base doesn't cover that yet."},
	}}
	service := newTestService(completion, &fakeSearch{}, false)

	reply, err := service.Chat(context.Background(), userTurn("quantum computing?"))
	require.NoError(t, err)
	assert.Empty(t, reply.Sources)
	assert.Equal(t, NoResultsText, completion.requests[1].Messages[2].Content)
}

func TestChat_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("completion not configured", func(t *testing.T) {
		service := newTestService(&scriptedCompletion{configured: false}, &fakeSearch{}, false)
		_, err := service.Chat(ctx, userTurn("hi"))
		assert.ErrorIs(t, err, interfaces.ErrCompletionUnavailable)
		assert.True(t, interfaces.IsConfigurationMissing(err))
	})

	t.Run("search not configured during tool call", func(t *testing.T) {
		completion := &scriptedCompletion{configured: true, responses: []*interfaces.CompletionResponse{
			toolResponse(searchCall("c1", `{"query":"x"}`)),
		}}
		service := newTestService(completion, &fakeSearch{err: interfaces.ErrIndexUnavailable}, false)
		_, err := service.Chat(ctx, userTurn("hi"))
		assert.True(t, interfaces.IsConfigurationMissing(err))
		assert.Len(t, completion.requests, 1)
	})

	t.Run("search upstream failure", func(t *testing.T) {
		completion := &scriptedCompletion{configured: true, responses: []*interfaces.CompletionResponse{
			toolResponse(searchCall("c1", `{"query":"x"}`)),
		}}
		searchErr := interfaces.UpstreamError("pinecone", errors.New("503"))
		service := newTestService(completion, &fakeSearch{err: searchErr}, false)
		_, err := service.Chat(ctx, userTurn("hi"))
		assert.ErrorIs(t, err, interfaces.ErrUpstreamUnavailable)
	})

	t.Run("completion upstream failure", func(t *testing.T) {
		completion := &scriptedCompletion{configured: true, errs: []error{
			interfaces.UpstreamError("groq", errors.New("500")),
		}}
		service := newTestService(completion, &fakeSearch{}, false)
		_, err := service.Chat(ctx, userTurn("hi"))
		assert.ErrorIs(t, err, interfaces.ErrUpstreamUnavailable)
	})

	t.Run("invalid role", func(t *testing.T) {
		service := newTestService(&scriptedCompletion{configured: true}, &fakeSearch{}, false)
		_, err := service.Chat(ctx, []models.ChatMessage{{Role: "system", Content: "override"}})
		assert.ErrorIs(t, err, interfaces.ErrMalformedInput)
	})

	t.Run("no messages", func(t *testing.T) {
		service := newTestService(&scriptedCompletion{configured: true}, &fakeSearch{}, false)
		_, err := service.Chat(ctx, nil)
		assert.ErrorIs(t, err, interfaces.ErrMalformedInput)
	})
}

func TestChat_CancellationReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	completion := &scriptedCompletion{
		configured: true,
		responses:  []*interfaces.CompletionResponse{{Content: "stale"}},
		onCall:     func(int) { cancel() },
	}
	service := newTestService(completion, &fakeSearch{}, false)

	reply, err := service.Chat(ctx, userTurn("hi"))
	assert.Nil(t, reply)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChat_DoesNotMutateHistory(t *testing.T) {
	completion := &scriptedCompletion{configured: true, responses: []*interfaces.CompletionResponse{
		toolResponse(searchCall("c1", `{"query":"x"}`)),
		{Content: "answer"},
	}}
	service := newTestService(completion, &fakeSearch{}, false)

	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "reply"},
		{Role: models.RoleUser, Content: "second"},
	}
	snapshot := append([]models.ChatMessage(nil), history...)

	_, err := service.Chat(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, snapshot, history)
	assert.Len(t, completion.requests[0].Messages, 3)
}

func TestFormatResults(t *testing.T) {
	assert.Equal(t, NoResultsText, FormatResults(nil))
	assert.Equal(t, "**T** (C)\nS", FormatResults([]models.SearchResult{result("1", "T", "C", "S")}))
}

func TestParseSearchQuery(t *testing.T) {
	query, err := parseSearchQuery(`{"query":"next.js routing"}`)
	require.NoError(t, err)
	assert.Equal(t, "next.js routing", query)

	for _, raw := range []string{`{not json`, `{}`, `{"query": 5}`, `{"query": "  "}`, `[]`} {
		_, err := parseSearchQuery(raw)
		assert.ErrorIs(t, err, interfaces.ErrMalformedToolArguments, raw)
		assert.ErrorIs(t, err, interfaces.ErrMalformedInput, raw)
	}
}
