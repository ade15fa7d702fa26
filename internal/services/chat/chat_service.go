// Package chat implements the tool-calling chat orchestrator: one completion
// that may request knowledge-base searches, the searches themselves, and a
// second completion that answers from their results.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

// Service orchestrates a single search-then-answer turn
type Service struct {
	completion    interfaces.CompletionService
	search        interfaces.SearchService
	searchLimit   int
	parallelTools bool
	maxTokens     int
	timeout       time.Duration
	logger        arbor.ILogger
}

// NewService creates a chat orchestrator
func NewService(completion interfaces.CompletionService, search interfaces.SearchService, config *common.ChatConfig, logger arbor.ILogger) *Service {
	searchLimit := config.SearchLimit
	if searchLimit <= 0 {
		searchLimit = 5
	}

	return &Service{
		completion:    completion,
		search:        search,
		searchLimit:   searchLimit,
		parallelTools: config.ParallelTools,
		maxTokens:     config.MaxTokens,
		timeout:       common.ParseDurationOr(config.Timeout, 2*time.Minute),
		logger:        logger,
	}
}

// Chat answers the newest turn of messages. The caller's slice is never modified.
func (s *Service) Chat(ctx context.Context, messages []models.ChatMessage) (*models.ChatReply, error) {
	history, err := normalizeHistory(messages)
	if err != nil {
		return nil, err
	}

	if !s.completion.Configured() {
		return nil, interfaces.ErrCompletionUnavailable
	}

	turnID := uuid.New().String()
	logger := s.logger.WithCorrelationId(turnID)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	first, err := s.completion.Complete(ctx, &interfaces.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Messages:     history,
		Tools:        []interfaces.ToolDefinition{SearchTool},
		ToolChoice:   interfaces.ToolChoiceAuto,
		MaxTokens:    s.maxTokens,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		logger.Error().Err(err).Str("turn_id", turnID).Msg("First completion failed")
		return nil, fmt.Errorf("first completion: %w", err)
	}

	if !first.HasToolCalls() {
		logger.Info().
			Str("turn_id", turnID).
			Dur("duration", time.Since(start)).
			Msg("Chat turn answered without tools")
		return &models.ChatReply{Message: first.Content, Sources: []models.Article{}}, nil
	}

	logger.Debug().
		Str("turn_id", turnID).
		Int("tool_calls", len(first.ToolCalls)).
		Bool("parallel", s.parallelTools).
		Msg("Executing tool calls")

	outcomes := s.runTools(ctx, first.ToolCalls, logger)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	sources := []models.Article{}
	followUp := make([]interfaces.Message, 0, len(history)+len(outcomes)+1)
	followUp = append(followUp, history...)
	followUp = append(followUp, interfaces.Message{
		Role:      interfaces.RoleAssistant,
		Content:   first.Content,
		ToolCalls: first.ToolCalls,
	})

	for _, outcome := range outcomes {
		if outcome.err != nil {
			logger.Error().Err(outcome.err).Str("turn_id", turnID).Msg("Tool execution failed")
			return nil, outcome.err
		}
		for _, result := range outcome.results {
			sources = models.MergeArticles(sources, []models.Article{result.Article})
		}
		followUp = append(followUp, interfaces.Message{
			Role:       interfaces.RoleTool,
			Content:    outcome.content,
			ToolCallID: outcome.call.ID,
			ToolName:   outcome.call.Name,
			IsError:    outcome.isError,
		})
	}

	second, err := s.completion.Complete(ctx, &interfaces.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Messages:     followUp,
		Tools:        []interfaces.ToolDefinition{SearchTool},
		ToolChoice:   interfaces.ToolChoiceNone,
		MaxTokens:    s.maxTokens,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		logger.Error().Err(err).Str("turn_id", turnID).Msg("Second completion failed")
		return nil, fmt.Errorf("second completion: %w", err)
	}

	logger.Info().
		Str("turn_id", turnID).
		Int("tool_calls", len(first.ToolCalls)).
		Int("sources", len(sources)).
		Dur("duration", time.Since(start)).
		Msg("Chat turn answered with search")

	return &models.ChatReply{Message: second.Content, Sources: sources}, nil
}

// Configured reports whether the completion service has a credential
func (s *Service) Configured() bool {
	return s.completion.Configured()
}

// normalizeHistory copies messages into completion form, rejecting unknown roles
func normalizeHistory(messages []models.ChatMessage) ([]interfaces.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("at least one message is required: %w", interfaces.ErrMalformedInput)
	}

	history := make([]interfaces.Message, 0, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			history = append(history, interfaces.Message{Role: interfaces.RoleUser, Content: msg.Content})
		case models.RoleAssistant:
			history = append(history, interfaces.Message{Role: interfaces.RoleAssistant, Content: msg.Content})
		default:
			return nil, fmt.Errorf("message %d has invalid role %q: %w", i, msg.Role, interfaces.ErrMalformedInput)
		}
	}
	return history, nil
}

var _ interfaces.ChatService = (*Service)(nil)
