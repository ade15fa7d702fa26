package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

// SemanticSearchService answers natural-language queries with the nearest
// articles in the vector index. Results keep the index order and never carry
// article bodies.
type SemanticSearchService struct {
	embeddings   interfaces.EmbeddingProvider
	index        interfaces.VectorIndex
	defaultLimit int
	maxLimit     int
	logger       arbor.ILogger
}

// NewSemanticSearchService creates a search service over the given provider and index
func NewSemanticSearchService(embeddings interfaces.EmbeddingProvider, index interfaces.VectorIndex, config *common.SearchConfig, logger arbor.ILogger) *SemanticSearchService {
	return &SemanticSearchService{
		embeddings:   embeddings,
		index:        index,
		defaultLimit: config.DefaultLimit,
		maxLimit:     config.MaxLimit,
		logger:       logger,
	}
}

// Search embeds query in query mode and returns at most topK results
func (s *SemanticSearchService) Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty: %w", interfaces.ErrMalformedInput)
	}

	topK = s.clampLimit(topK)
	start := time.Now()

	vector, err := s.embeddings.Embed(ctx, query, interfaces.EmbeddingModeQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector index: %w", err)
	}

	results := make([]models.SearchResult, 0, len(matches))
	for _, match := range matches {
		results = append(results, models.SearchResult{
			ID:      match.ID,
			Score:   match.Score,
			Article: models.ArticleFromMetadata(match.ID, match.Metadata),
		})
	}

	s.logger.Debug().
		Str("query", query).
		Int("limit", topK).
		Int("results", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Semantic search completed")

	return results, nil
}

// Configured reports whether both the embedding provider and the index have credentials
func (s *SemanticSearchService) Configured() bool {
	return s.embeddings.Configured() && s.index.Configured()
}

func (s *SemanticSearchService) clampLimit(topK int) int {
	if topK <= 0 {
		topK = s.defaultLimit
	}
	if s.maxLimit > 0 && topK > s.maxLimit {
		topK = s.maxLimit
	}
	return topK
}

var _ interfaces.SearchService = (*SemanticSearchService)(nil)
