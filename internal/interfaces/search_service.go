package interfaces

import (
	"context"

	"github.com/ternarybob/decoupled/internal/models"
)

// SearchService performs semantic search over the indexed articles.
type SearchService interface {
	// Search embeds the query, retrieves at most topK nearest articles and
	// returns them in index order. topK <= 0 selects the default limit.
	Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error)

	// Configured reports whether both the embedding provider and the vector index are configured.
	Configured() bool
}
