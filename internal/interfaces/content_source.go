package interfaces

import (
	"context"

	"github.com/ternarybob/decoupled/internal/models"
)

// ContentSource yields every article of the knowledge base.
type ContentSource interface {
	// FetchArticles authenticates and pages through all published articles.
	FetchArticles(ctx context.Context) ([]models.Article, error)

	// Configured reports whether the base URL and client credentials are present.
	Configured() bool
}
