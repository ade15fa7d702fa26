package embeddings

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/decoupled/internal/interfaces"
)

// fakeEmbedClient records requests and returns a fixed-dimension vector
type fakeEmbedClient struct {
	dimension int
	err       error
	texts     []string
	taskTypes []string
}

func (f *fakeEmbedClient) EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.texts = append(f.texts, contents[0].Parts[0].Text)
	f.taskTypes = append(f.taskTypes, config.TaskType)
	if f.err != nil {
		return nil, f.err
	}
	return &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: make([]float32, f.dimension)}},
	}, nil
}

func newTestProvider(client embedClient, dimension, maxChars int) *GeminiProvider {
	return &GeminiProvider{
		client:    client,
		model:     "test-embedding",
		dimension: dimension,
		maxChars:  maxChars,
		timeout:   5 * time.Second,
		logger:    arbor.NewNoOpLogger(),
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel", Truncate("hello", 3))
	assert.Equal(t, "hello", Truncate("hello", 0))
	// Counts characters, not bytes
	assert.Equal(t, "héé", Truncate("héééé", 3))
}

func TestEmbed_TruncationIsDeterministic(t *testing.T) {
	client := &fakeEmbedClient{dimension: 4}
	provider := newTestProvider(client, 4, 32000)

	long := strings.Repeat("x", 40000)
	for i := 0; i < 2; i++ {
		_, err := provider.Embed(context.Background(), long, interfaces.EmbeddingModeDocument)
		require.NoError(t, err)
	}

	require.Len(t, client.texts, 2)
	assert.Len(t, client.texts[0], 32000)
	assert.Equal(t, client.texts[0], client.texts[1])
}

func TestEmbed_ModeSelectsTaskType(t *testing.T) {
	client := &fakeEmbedClient{dimension: 4}
	provider := newTestProvider(client, 4, 100)
	ctx := context.Background()

	_, err := provider.Embed(ctx, "doc", interfaces.EmbeddingModeDocument)
	require.NoError(t, err)
	_, err = provider.Embed(ctx, "query", interfaces.EmbeddingModeQuery)
	require.NoError(t, err)

	assert.Equal(t, []string{"RETRIEVAL_DOCUMENT", "RETRIEVAL_QUERY"}, client.taskTypes)

	_, err = provider.Embed(ctx, "x", interfaces.EmbeddingMode("sideways"))
	assert.ErrorIs(t, err, interfaces.ErrMalformedInput)
}

func TestEmbed_Errors(t *testing.T) {
	ctx := context.Background()

	unconfigured := newTestProvider(nil, 4, 100)
	assert.False(t, unconfigured.Configured())
	_, err := unconfigured.Embed(ctx, "text", interfaces.EmbeddingModeQuery)
	assert.ErrorIs(t, err, interfaces.ErrProviderUnavailable)
	assert.ErrorIs(t, err, interfaces.ErrConfigurationMissing)

	failing := newTestProvider(&fakeEmbedClient{err: errors.New("boom")}, 4, 100)
	_, err = failing.Embed(ctx, "text", interfaces.EmbeddingModeQuery)
	assert.ErrorIs(t, err, interfaces.ErrUpstreamUnavailable)

	wrongDim := newTestProvider(&fakeEmbedClient{dimension: 3}, 4, 100)
	_, err = wrongDim.Embed(ctx, "text", interfaces.EmbeddingModeQuery)
	assert.ErrorIs(t, err, interfaces.ErrUpstreamUnavailable)

	ok := newTestProvider(&fakeEmbedClient{dimension: 4}, 4, 100)
	_, err = ok.Embed(ctx, "   ", interfaces.EmbeddingModeQuery)
	assert.ErrorIs(t, err, interfaces.ErrMalformedInput)
}
