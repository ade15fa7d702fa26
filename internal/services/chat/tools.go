package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

// toolOutcome is the result of one tool call. err is set only for failures
// that abort the turn; recoverable problems become an error payload instead.
type toolOutcome struct {
	call    interfaces.ToolCall
	content string
	isError bool
	results []models.SearchResult
	err     error
}

// searchArguments is the argument object of search_articles
type searchArguments struct {
	Query any `json:"query"`
}

// parseSearchQuery extracts the query string from raw tool arguments
func parseSearchQuery(arguments string) (string, error) {
	var args searchArguments
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrMalformedToolArguments, err)
	}

	query, ok := args.Query.(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: a non-empty string \"query\" is required", interfaces.ErrMalformedToolArguments)
	}
	return query, nil
}

// runTools executes every call and returns the outcomes in call order
func (s *Service) runTools(ctx context.Context, calls []interfaces.ToolCall, logger arbor.ILogger) []toolOutcome {
	outcomes := make([]toolOutcome, len(calls))

	if !s.parallelTools || len(calls) == 1 {
		for i, call := range calls {
			outcomes[i] = s.executeTool(ctx, call, logger)
			if outcomes[i].err != nil {
				break
			}
		}
		return outcomes
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call interfaces.ToolCall) {
			defer wg.Done()
			outcomes[i] = s.executeTool(ctx, call, logger)
		}(i, call)
	}
	wg.Wait()

	return outcomes
}

// executeTool dispatches one tool call
func (s *Service) executeTool(ctx context.Context, call interfaces.ToolCall, logger arbor.ILogger) toolOutcome {
	outcome := toolOutcome{call: call}

	if call.Name != SearchToolName {
		logger.Warn().Str("tool", call.Name).Str("call_id", call.ID).Msg("Model requested unknown tool")
		outcome.content = fmt.Sprintf("Error: unknown tool %q. The only available tool is %s.", call.Name, SearchToolName)
		outcome.isError = true
		return outcome
	}

	query, err := parseSearchQuery(call.Arguments)
	if err != nil {
		logger.Warn().Err(err).Str("call_id", call.ID).Str("arguments", call.Arguments).Msg("Malformed tool arguments")
		outcome.content = fmt.Sprintf("Error: invalid arguments for %s. Provide a JSON object with a string \"query\".", SearchToolName)
		outcome.isError = true
		return outcome
	}

	results, err := s.search.Search(ctx, query, s.searchLimit)
	if err != nil {
		outcome.err = fmt.Errorf("search_articles %q: %w", query, err)
		return outcome
	}

	logger.Debug().
		Str("call_id", call.ID).
		Str("query", query).
		Int("results", len(results)).
		Msg("Executed search tool")

	outcome.results = results
	outcome.content = FormatResults(results)
	return outcome
}
