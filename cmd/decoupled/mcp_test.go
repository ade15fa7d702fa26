package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

type fakeSearch struct {
	results []models.SearchResult
	err     error
	limit   int
}

func (f *fakeSearch) Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	f.limit = topK
	return f.results, f.err
}

func (f *fakeSearch) Configured() bool { return true }

func callRequest(name string, arguments map[string]any) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = arguments
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleSearchArticles(t *testing.T) {
	search := &fakeSearch{results: []models.SearchResult{
		{ID: "a1", Score: 0.8, Article: models.Article{Title: "Caching", Category: "Performance", Slug: "/articles/caching", Summary: "How caches work"}},
	}}
	handler := handleSearchArticles(search, arbor.NewNoOpLogger())

	result, err := handler(context.Background(), callRequest("search_articles", map[string]any{"query": "caching", "limit": 3}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 3, search.limit)

	text := resultText(t, result)
	assert.Contains(t, text, "1. **Caching** (Performance, score 0.800)")
	assert.Contains(t, text, "/articles/caching")

	result, err = handler(context.Background(), callRequest("search_articles", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	search.err = errors.New("pinecone down")
	result, err = handler(context.Background(), callRequest("search_articles", map[string]any{"query": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, 10, search.limit)
}

func TestHandleAsk(t *testing.T) {
	chat := &fakeChat{reply: func(messages []models.ChatMessage) (*models.ChatReply, error) {
		return &models.ChatReply{
			Message: "Use a CDN.",
			Sources: []models.Article{{ID: "a1", Title: "CDN Caching", Slug: "/articles/cdn"}},
		}, nil
	}}
	handler := handleAsk(chat, arbor.NewNoOpLogger())

	result, err := handler(context.Background(), callRequest("ask", map[string]any{"question": "How do I cache?"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Use a CDN.\n\n## Sources\n\n- CDN Caching (/articles/cdn)\n", resultText(t, result))

	require.Len(t, chat.requests, 1)
	assert.Equal(t, []models.ChatMessage{{Role: models.RoleUser, Content: "How do I cache?"}}, chat.requests[0])

	result, err = handler(context.Background(), callRequest("ask", map[string]any{"question": "  "}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMCPToolErrorsHideUpstreamDetail(t *testing.T) {
	leaked := interfaces.UpstreamError("pinecone", errors.New(`{"error":"invalid api key pcsk_SECRET"}`))

	search := handleSearchArticles(&fakeSearch{err: leaked}, arbor.NewNoOpLogger())
	result, err := search(context.Background(), callRequest("search_articles", map[string]any{"query": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Search failed: an upstream service is unavailable, please try again", resultText(t, result))

	chat := &fakeChat{reply: func(messages []models.ChatMessage) (*models.ChatReply, error) {
		return nil, leaked
	}}
	ask := handleAsk(chat, arbor.NewNoOpLogger())
	result, err = ask(context.Background(), callRequest("ask", map[string]any{"question": "hi"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := resultText(t, result)
	assert.Equal(t, "Chat failed: an upstream service is unavailable, please try again", text)
	assert.NotContains(t, text, "pcsk_SECRET")

	ask = handleAsk(&fakeChat{reply: func(messages []models.ChatMessage) (*models.ChatReply, error) {
		return nil, fmt.Errorf("articles: %w", interfaces.ErrIndexNotFound)
	}}, arbor.NewNoOpLogger())
	result, err = ask(context.Background(), callRequest("ask", map[string]any{"question": "hi"}))
	require.NoError(t, err)
	assert.Equal(t, "Chat failed: the search index has not been built yet, run the indexer first", resultText(t, result))
}

func TestNewMCPServer(t *testing.T) {
	assert.NotNil(t, newMCPServer(&fakeSearch{}, &fakeChat{}, arbor.NewNoOpLogger()))
}
