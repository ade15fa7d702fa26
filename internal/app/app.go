package app

import (
	"context"
	"fmt"
	"io"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/handlers"
	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/services/chat"
	"github.com/ternarybob/decoupled/internal/services/content"
	"github.com/ternarybob/decoupled/internal/services/conversation"
	"github.com/ternarybob/decoupled/internal/services/embeddings"
	"github.com/ternarybob/decoupled/internal/services/indexing"
	"github.com/ternarybob/decoupled/internal/services/llm"
	"github.com/ternarybob/decoupled/internal/services/scheduler"
	"github.com/ternarybob/decoupled/internal/services/search"
	"github.com/ternarybob/decoupled/internal/services/vectorindex"
	"github.com/ternarybob/decoupled/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	StorageManager interfaces.StorageManager

	// External collaborators
	Embeddings    interfaces.EmbeddingProvider
	VectorIndex   interfaces.VectorIndex
	Completion    interfaces.CompletionService
	ContentSource interfaces.ContentSource

	// Domain services
	SearchService     interfaces.SearchService
	ChatService       interfaces.ChatService
	IndexingService   interfaces.IndexingService
	SchedulerService  interfaces.SchedulerService
	ConversationStore interfaces.ConversationStore

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	SearchHandler *handlers.SearchHandler
	ChatHandler   *handlers.ChatHandler
	ConfigHandler *handlers.ConfigHandler
	IndexHandler  *handlers.IndexHandler
}

// New initializes the application with all dependencies.
// Missing credentials never fail startup: the affected services report
// themselves unconfigured and their endpoints answer 503.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(ctx); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("completion_provider", app.Completion.Provider()).
		Str("completion_model", app.Completion.Model()).
		Bool("completion", app.Completion.Configured()).
		Bool("embedding", app.Embeddings.Configured()).
		Bool("vector_index", app.VectorIndex.Configured()).
		Bool("content_source", app.ContentSource.Configured()).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the key/value store, seeds it from variables.toml and
// resolves {key} references and secrets in the configuration.
func (a *App) initDatabase(ctx context.Context) error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	if err := a.StorageManager.LoadVariablesFromFiles(ctx, a.Config.Variables.Dir); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load variables from files")
	}

	kv := a.StorageManager.KeyValueStorage()
	common.ApplyKeyReplacements(ctx, a.Config, kv, a.Logger)
	common.ResolveSecrets(ctx, a.Config, kv, a.Logger)

	return nil
}

// initServices builds every client once and injects it
func (a *App) initServices(ctx context.Context) error {
	kv := a.StorageManager.KeyValueStorage()

	embeddingProvider, err := embeddings.NewGeminiProvider(ctx, a.Config.Gemini.APIKey, &a.Config.Embedding, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	a.Embeddings = embeddingProvider

	a.VectorIndex = vectorindex.NewClientFromConfig(a.Config.Pinecone.APIKey, &a.Config.Pinecone, a.Logger)

	completion, err := llm.NewCompletionService(ctx, a.Config, kv, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create completion service: %w", err)
	}
	a.Completion = completion

	a.ContentSource = content.NewDrupalSource(a.Config.Drupal.ClientSecret, &a.Config.Drupal, a.Logger)

	a.SearchService = search.NewSemanticSearchService(a.Embeddings, a.VectorIndex, &a.Config.Search, a.Logger)
	a.ChatService = chat.NewService(a.Completion, a.SearchService, &a.Config.Chat, a.Logger)
	a.IndexingService = indexing.NewService(a.ContentSource, a.Embeddings, a.VectorIndex, kv,
		&a.Config.Indexing, a.Config.Drupal.BodyFormat, a.Logger)
	a.SchedulerService = scheduler.NewService(a.IndexingService, &a.Config.Indexing, a.Logger)
	a.ConversationStore = conversation.NewStore(kv, a.Logger)

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.SearchHandler = handlers.NewSearchHandler(a.SearchService, a.Logger)
	a.ChatHandler = handlers.NewChatHandler(a.ChatService, a.Logger)
	a.ConfigHandler = handlers.NewConfigHandler(a.Completion, a.Embeddings, a.VectorIndex, a.ContentSource, a.Logger)
	a.IndexHandler = handlers.NewIndexHandler(a.SchedulerService, a.IndexingService, a.Config.Indexing.TriggerSecret, a.Logger)
}

// Close stops background work and closes storage
func (a *App) Close() error {
	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	if closer, ok := a.VectorIndex.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close vector index connection")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
