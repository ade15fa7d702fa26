package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
)

type mockEmbeddings struct {
	configured bool
	err        error
	modes      []interfaces.EmbeddingMode
}

func (m *mockEmbeddings) Embed(ctx context.Context, text string, mode interfaces.EmbeddingMode) ([]float32, error) {
	m.modes = append(m.modes, mode)
	if m.err != nil {
		return nil, m.err
	}
	return []float32{1, 0, 0}, nil
}

func (m *mockEmbeddings) Configured() bool { return m.configured }
func (m *mockEmbeddings) Dimension() int   { return 3 }
func (m *mockEmbeddings) Model() string    { return "mock" }

type mockIndex struct {
	interfaces.VectorIndex
	configured bool
	matches    []interfaces.VectorMatch
	gotTopK    int
}

func (m *mockIndex) Query(ctx context.Context, vector []float32, topK int) ([]interfaces.VectorMatch, error) {
	m.gotTopK = topK
	if len(m.matches) > topK {
		return m.matches[:topK], nil
	}
	return m.matches, nil
}

func (m *mockIndex) Configured() bool { return m.configured }

func newService(embeddings *mockEmbeddings, index *mockIndex) *SemanticSearchService {
	return NewSemanticSearchService(embeddings, index, &common.SearchConfig{DefaultLimit: 10, MaxLimit: 50}, arbor.NewNoOpLogger())
}

func TestSearch_IndexOrderAndEmptyBodies(t *testing.T) {
	index := &mockIndex{configured: true, matches: []interfaces.VectorMatch{
		{ID: "low-first", Score: 0.2, Metadata: map[string]any{"title": "Second best", "tags": "go, http"}},
		{ID: "high", Score: 0.9, Metadata: map[string]any{"title": "Best"}},
		{ID: "third", Score: 0.5, Metadata: map[string]any{}},
	}}
	embeddings := &mockEmbeddings{configured: true}
	service := newService(embeddings, index)

	results, err := service.Search(context.Background(), "caching", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Order is the index's, never re-sorted
	assert.Equal(t, "low-first", results[0].ID)
	assert.Equal(t, "high", results[1].ID)
	assert.Equal(t, []string{"go", "http"}, results[0].Article.Tags)
	for _, result := range results {
		assert.Empty(t, result.Article.Body)
	}

	assert.Equal(t, []interfaces.EmbeddingMode{interfaces.EmbeddingModeQuery}, embeddings.modes)
}

func TestSearch_MetadataDefaults(t *testing.T) {
	index := &mockIndex{configured: true, matches: []interfaces.VectorMatch{{ID: "bare", Score: 0.1}}}
	service := newService(&mockEmbeddings{configured: true}, index)

	results, err := service.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	article := results[0].Article
	assert.Equal(t, "General", article.Category)
	assert.Equal(t, "5 min read", article.ReadTime)
	assert.Equal(t, []string{}, article.Tags)
	assert.Nil(t, article.Image)
}

func TestSearch_Limits(t *testing.T) {
	index := &mockIndex{configured: true}
	service := newService(&mockEmbeddings{configured: true}, index)
	ctx := context.Background()

	_, err := service.Search(ctx, "q", 0)
	require.NoError(t, err)
	assert.Equal(t, 10, index.gotTopK)

	_, err = service.Search(ctx, "q", 500)
	require.NoError(t, err)
	assert.Equal(t, 50, index.gotTopK)

	results, err := service.Search(ctx, "q", 3)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearch_Errors(t *testing.T) {
	ctx := context.Background()

	service := newService(&mockEmbeddings{configured: true}, &mockIndex{configured: true})
	_, err := service.Search(ctx, "   ", 5)
	assert.ErrorIs(t, err, interfaces.ErrMalformedInput)

	unconfigured := newService(&mockEmbeddings{err: interfaces.ErrProviderUnavailable}, &mockIndex{configured: true})
	assert.False(t, unconfigured.Configured())
	_, err = unconfigured.Search(ctx, "q", 5)
	assert.ErrorIs(t, err, interfaces.ErrConfigurationMissing)
}
