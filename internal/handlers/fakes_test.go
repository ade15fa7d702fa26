package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

type fakeSearchService struct {
	searchFunc func(ctx context.Context, query string, topK int) ([]models.SearchResult, error)
	configured bool
}

func (f *fakeSearchService) Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	if f.searchFunc != nil {
		return f.searchFunc(ctx, query, topK)
	}
	return []models.SearchResult{}, nil
}

func (f *fakeSearchService) Configured() bool { return f.configured }

type fakeChatService struct {
	chatFunc   func(ctx context.Context, messages []models.ChatMessage) (*models.ChatReply, error)
	configured bool
}

func (f *fakeChatService) Chat(ctx context.Context, messages []models.ChatMessage) (*models.ChatReply, error) {
	if f.chatFunc != nil {
		return f.chatFunc(ctx, messages)
	}
	return &models.ChatReply{Sources: []models.Article{}}, nil
}

func (f *fakeChatService) Configured() bool { return f.configured }

type fakeScheduler struct {
	interfaces.SchedulerService
	triggerErr error
	triggers   []string
	running    bool
}

func (f *fakeScheduler) TriggerNow(trigger string) error {
	if f.triggerErr != nil {
		return f.triggerErr
	}
	f.triggers = append(f.triggers, trigger)
	return nil
}

func (f *fakeScheduler) IsRunning() bool { return f.running }

type fakeIndexing struct {
	interfaces.IndexingService
	lastRun *models.IndexingRun
	err     error
}

func (f *fakeIndexing) LastRun(ctx context.Context) (*models.IndexingRun, error) {
	return f.lastRun, f.err
}

type configured bool

func (c configured) Configured() bool { return bool(c) }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
