package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/interfaces"
)

// IndexSecretHeader carries the shared secret that authorises index runs
const IndexSecretHeader = "X-Index-Secret"

// IndexHandler triggers indexing runs and reports their status
type IndexHandler struct {
	scheduler interfaces.SchedulerService
	indexing  interfaces.IndexingService
	secret    string
	logger    arbor.ILogger
}

func NewIndexHandler(scheduler interfaces.SchedulerService, indexing interfaces.IndexingService, secret string, logger arbor.ILogger) *IndexHandler {
	return &IndexHandler{
		scheduler: scheduler,
		indexing:  indexing,
		secret:    secret,
		logger:    logger,
	}
}

// TriggerHandler handles POST /api/index. The endpoint does not exist while no secret is configured.
func (h *IndexHandler) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		WriteError(w, http.StatusNotFound, "Not Found")
		return
	}
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	provided := r.Header.Get(IndexSecretHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		h.logger.Warn().Str("remote", r.RemoteAddr).Msg("Rejected index trigger with invalid secret")
		WriteError(w, http.StatusUnauthorized, "Invalid secret")
		return
	}

	if err := h.scheduler.TriggerNow("api"); err != nil {
		if errors.Is(err, interfaces.ErrRunInProgress) {
			WriteError(w, http.StatusConflict, "An indexing run is already in progress")
			return
		}
		writeServiceError(w, h.logger, err, nil, "Failed to start indexing run")
		return
	}

	h.logger.Info().Msg("Indexing run triggered via API")
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// StatusHandler handles GET /api/index/status
func (h *IndexHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	run, err := h.indexing.LastRun(r.Context())
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "No indexing run recorded")
			return
		}
		writeServiceError(w, h.logger, err, nil, "Failed to read indexing status")
		return
	}

	WriteJSON(w, http.StatusOK, run)
}
