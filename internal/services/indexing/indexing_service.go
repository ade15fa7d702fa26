// Package indexing runs the content indexing pipeline: fetch every article,
// embed it and upsert it into the vector index.
package indexing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
	"github.com/ternarybob/decoupled/internal/services/content"
)

// LastRunKey is the key-value entry holding the most recent run record
const LastRunKey = "indexing.last_run"

// RunKeyPrefix prefixes the per-run history entries
const RunKeyPrefix = "indexing.run."

// MaxRunHistory is the number of run records kept in the history
const MaxRunHistory = 20

// Service implements the indexing pipeline
type Service struct {
	source     interfaces.ContentSource
	embeddings interfaces.EmbeddingProvider
	index      interfaces.VectorIndex
	kv         interfaces.KeyValueStorage
	bodyFormat string
	delay      time.Duration
	retry      RetryPolicy
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	logger     arbor.ILogger
}

// NewService creates the indexing pipeline. kv may be nil, in which case run
// records are not persisted.
func NewService(
	source interfaces.ContentSource,
	embeddings interfaces.EmbeddingProvider,
	index interfaces.VectorIndex,
	kv interfaces.KeyValueStorage,
	config *common.IndexingConfig,
	bodyFormat string,
	logger arbor.ILogger,
) *Service {
	return &Service{
		source:     source,
		embeddings: embeddings,
		index:      index,
		kv:         kv,
		bodyFormat: bodyFormat,
		delay:      common.ParseDurationOr(config.Delay, 100*time.Millisecond),
		retry:      NewRetryPolicy(config.MaxRetries),
		sleep:      sleepContext,
		now:        time.Now,
		logger:     logger,
	}
}

// Run indexes every article. The returned record is also returned on failure.
func (s *Service) Run(ctx context.Context, trigger string) (*models.IndexingRun, error) {
	run := &models.IndexingRun{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		Status:    models.IndexingStatusRunning,
		StartedAt: s.now(),
	}

	err := s.execute(ctx, run)

	completed := s.now()
	run.CompletedAt = &completed
	if err != nil {
		run.Status = models.IndexingStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = models.IndexingStatusSucceeded
	}
	s.saveRun(run)

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("run_id", run.ID).
			Int("indexed", run.Indexed).
			Int("articles", run.Articles).
			Msg("Indexing run failed")
		return run, err
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("trigger", trigger).
		Int("indexed", run.Indexed).
		Dur("duration", run.Duration()).
		Msg("Indexing run completed")
	return run, nil
}

func (s *Service) execute(ctx context.Context, run *models.IndexingRun) error {
	switch {
	case !s.source.Configured():
		return interfaces.ErrContentSourceUnavailable
	case !s.embeddings.Configured():
		return interfaces.ErrProviderUnavailable
	case !s.index.Configured():
		return interfaces.ErrIndexUnavailable
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("index", s.index.Name()).
		Int("dimension", s.embeddings.Dimension()).
		Msg("Ensuring vector index exists")
	if err := s.index.EnsureIndex(ctx, s.embeddings.Dimension()); err != nil {
		return fmt.Errorf("failed to ensure index: %w", err)
	}

	articles, err := s.source.FetchArticles(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch articles: %w", err)
	}
	run.Articles = len(articles)

	if len(articles) == 0 {
		s.logger.Warn().Str("run_id", run.ID).Msg("No articles found to index")
		return nil
	}

	s.logger.Info().Int("articles", len(articles)).Msg("Indexing articles")

	for i, article := range articles {
		s.logger.Info().
			Str("progress", fmt.Sprintf("[%d/%d]", i+1, len(articles))).
			Str("id", article.ID).
			Str("title", article.Title).
			Msg("Indexing article")

		if err := s.indexArticle(ctx, article); err != nil {
			run.Failed++
			return fmt.Errorf("article %s: %w", article.ID, err)
		}
		run.Indexed++

		// The delay runs from the end of this upsert to the next embed
		if i < len(articles)-1 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return err
			}
		}
	}

	return nil
}

// indexArticle embeds one article and upserts it under its id
func (s *Service) indexArticle(ctx context.Context, article models.Article) error {
	text := DocumentText(article, s.bodyFormat)

	vector, err := s.embedWithRetry(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed: %w", err)
	}

	if err := s.index.Upsert(ctx, interfaces.VectorRecord{
		ID:       article.ID,
		Values:   vector,
		Metadata: article.Metadata(),
	}); err != nil {
		return fmt.Errorf("failed to upsert: %w", err)
	}
	return nil
}

func (s *Service) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	for attempt := 0; ; attempt++ {
		vector, err := s.embeddings.Embed(ctx, text, interfaces.EmbeddingModeDocument)
		if err == nil {
			return vector, nil
		}
		if attempt >= s.retry.MaxRetries || !IsRateLimitError(err) {
			return nil, err
		}

		backoff := s.retry.Backoff(attempt, ExtractRetryDelay(err))
		s.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Embedding rate limited, retrying")

		if err := s.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

// DocumentText builds the text that is embedded for an article
func DocumentText(article models.Article, bodyFormat string) string {
	return article.Title + "\n\n" + article.Summary + "\n\n" + content.PlainText(article.Body, bodyFormat)
}

func (s *Service) saveRun(run *models.IndexingRun) {
	if s.kv == nil {
		return
	}

	data, err := json.Marshal(run)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode indexing run")
		return
	}

	// The caller's context may already be cancelled; the record is still written
	ctx := context.Background()
	if err := s.kv.Set(ctx, LastRunKey, string(data), "Most recent indexing run"); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to save indexing run")
	}
	if err := s.kv.Set(ctx, RunKeyPrefix+run.ID, string(data), "Indexing run "+run.Trigger); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to save indexing run history")
		return
	}
	s.pruneRuns(ctx)
}

// pruneRuns deletes history entries beyond MaxRunHistory
func (s *Service) pruneRuns(ctx context.Context) {
	runs, err := s.history(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list indexing run history")
		return
	}
	for _, run := range runs[min(len(runs), MaxRunHistory):] {
		if err := s.kv.Delete(ctx, RunKeyPrefix+run.ID); err != nil {
			s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to prune indexing run")
		}
	}
}

// history decodes every stored run record, newest first
func (s *Service) history(ctx context.Context) ([]*models.IndexingRun, error) {
	pairs, err := s.kv.List(ctx)
	if err != nil {
		return nil, err
	}

	runs := []*models.IndexingRun{}
	for _, pair := range pairs {
		if !strings.HasPrefix(strings.ToLower(pair.Key), RunKeyPrefix) {
			continue
		}
		var run models.IndexingRun
		if err := json.Unmarshal([]byte(pair.Value), &run); err != nil {
			s.logger.Warn().Err(err).Str("key", pair.Key).Msg("Skipping undecodable indexing run")
			continue
		}
		runs = append(runs, &run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// RecentRuns returns up to limit run records, newest first
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]*models.IndexingRun, error) {
	if s.kv == nil {
		return []*models.IndexingRun{}, nil
	}

	runs, err := s.history(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexing runs: %w", err)
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// LastRun returns the most recent run record, or ErrKeyNotFound
func (s *Service) LastRun(ctx context.Context) (*models.IndexingRun, error) {
	if s.kv == nil {
		return nil, interfaces.ErrKeyNotFound
	}

	data, err := s.kv.Get(ctx, LastRunKey)
	if err != nil {
		return nil, err
	}

	var run models.IndexingRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to decode indexing run: %w", err)
	}
	return &run, nil
}

// DeleteArticle removes one article's vector
func (s *Service) DeleteArticle(ctx context.Context, id string) error {
	if !s.index.Configured() {
		return interfaces.ErrIndexUnavailable
	}
	if id == "" {
		return fmt.Errorf("article id is required: %w", interfaces.ErrMalformedInput)
	}
	if err := s.index.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	s.logger.Info().Str("id", id).Msg("Deleted article from index")
	return nil
}

// ClearIndex removes every vector from the index
func (s *Service) ClearIndex(ctx context.Context) error {
	if !s.index.Configured() {
		return interfaces.ErrIndexUnavailable
	}
	if err := s.index.ClearAll(ctx); err != nil {
		return err
	}
	s.logger.Info().Str("index", s.index.Name()).Msg("Cleared vector index")
	return nil
}

var _ interfaces.IndexingService = (*Service)(nil)
