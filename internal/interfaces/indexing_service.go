package interfaces

import (
	"context"

	"github.com/ternarybob/decoupled/internal/models"
)

// IndexingService runs the content indexing pipeline.
type IndexingService interface {
	// Run indexes every article from the content source. trigger is recorded
	// on the run ("cli", "schedule", "api").
	Run(ctx context.Context, trigger string) (*models.IndexingRun, error)

	// LastRun returns the most recently recorded run, or ErrKeyNotFound.
	LastRun(ctx context.Context) (*models.IndexingRun, error)

	// RecentRuns returns up to limit recorded runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]*models.IndexingRun, error)

	// DeleteArticle removes one article's vector from the index.
	DeleteArticle(ctx context.Context, id string) error

	// ClearIndex removes every vector from the index.
	ClearIndex(ctx context.Context) error
}

// SchedulerService runs the indexing pipeline on a cron schedule and on demand.
type SchedulerService interface {
	Start() error
	Stop()

	// TriggerNow starts a background run. Returns ErrRunInProgress if one is active.
	TriggerNow(trigger string) error

	// IsRunning reports whether a run is in progress.
	IsRunning() bool
}

// ConversationStore persists the client-side conversation snapshot.
type ConversationStore interface {
	// Load never fails: a missing or corrupt snapshot yields an empty one.
	Load(ctx context.Context) *models.ConversationSnapshot
	Save(ctx context.Context, snapshot *models.ConversationSnapshot) error

	// Append adds messages to the stored snapshot and merges their sources.
	Append(ctx context.Context, messages ...models.ConversationMessage) error
	Clear(ctx context.Context) error
}
