package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

// SearchHandler handles semantic search requests
type SearchHandler struct {
	searchService interfaces.SearchService
	logger        arbor.ILogger
}

// NewSearchHandler creates a new search handler with dependencies
func NewSearchHandler(searchService interfaces.SearchService, logger arbor.ILogger) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		logger:        logger,
	}
}

var searchErrorMessages = map[int]string{
	http.StatusBadRequest:         `Query parameter "q" is required`,
	http.StatusServiceUnavailable: "Search is not configured. Set the Pinecone and Gemini API keys.",
}

// SearchHandler handles GET /api/search?q=query&limit=n requests
func (h *SearchHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		WriteError(w, http.StatusBadRequest, searchErrorMessages[http.StatusBadRequest])
		return
	}

	// Unparseable limits fall back to the service default
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	h.logger.Info().
		Str("query", query).
		Int("limit", limit).
		Msg("Search request received")

	results, err := h.searchService.Search(r.Context(), query, limit)
	if err != nil {
		writeQueryError(w, h.logger, err, searchErrorMessages, "Search failed. Please try again.")
		return
	}

	WriteJSON(w, http.StatusOK, models.SearchResponse{
		Query:        query,
		Results:      results,
		TotalResults: len(results),
	})
}
