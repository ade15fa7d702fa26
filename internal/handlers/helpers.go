package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/interfaces"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes the {"error": message} body used by every endpoint.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// StatusForError maps the error taxonomy onto HTTP status codes:
// configuration missing is 503, malformed input is 400, a running run is 409,
// missing keys and indexes are 404, anything else is 500.
func StatusForError(err error) int {
	switch {
	case interfaces.IsConfigurationMissing(err):
		return http.StatusServiceUnavailable
	case interfaces.IsMalformedInput(err):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrKeyNotFound), errors.Is(err, interfaces.ErrIndexNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// indexNotBuiltMessage is returned when the configured index does not exist yet.
const indexNotBuiltMessage = "The search index has not been built yet. Run the indexer first."

// writeServiceError logs err and writes the message registered for its status.
// Internal error text never reaches the client.
func writeServiceError(w http.ResponseWriter, logger arbor.ILogger, err error, messages map[int]string, fallback string) {
	status := StatusForError(err)
	logServiceError(logger, err, status)

	message, ok := messages[status]
	if !ok {
		message = fallback
	}
	WriteError(w, status, message)
}

// writeQueryError is writeServiceError for the search and chat endpoints,
// where a missing index means the service is not ready rather than a missing resource.
func writeQueryError(w http.ResponseWriter, logger arbor.ILogger, err error, messages map[int]string, fallback string) {
	if errors.Is(err, interfaces.ErrIndexNotFound) {
		logServiceError(logger, err, http.StatusServiceUnavailable)
		WriteError(w, http.StatusServiceUnavailable, indexNotBuiltMessage)
		return
	}
	writeServiceError(w, logger, err, messages, fallback)
}

func logServiceError(logger arbor.ILogger, err error, status int) {
	event := logger.Error()
	if status < http.StatusInternalServerError {
		event = logger.Warn()
	}
	event.Err(err).Int("status", status).Msg("Request failed")
}
