package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
)

// Configurable is any collaborator that can report whether its credentials are present
type Configurable interface {
	Configured() bool
}

// ServiceStatus reports which collaborators are configured
type ServiceStatus struct {
	Completion    bool `json:"completion"`
	Embedding     bool `json:"embedding"`
	VectorIndex   bool `json:"vectorIndex"`
	ContentSource bool `json:"contentSource"`
}

// ConfigResponse is the body of GET /api/config
type ConfigResponse struct {
	Configured bool          `json:"configured"`
	Services   ServiceStatus `json:"services"`
}

type ConfigHandler struct {
	completion    Configurable
	embedding     Configurable
	vectorIndex   Configurable
	contentSource Configurable
	logger        arbor.ILogger
}

func NewConfigHandler(completion, embedding, vectorIndex, contentSource Configurable, logger arbor.ILogger) *ConfigHandler {
	return &ConfigHandler{
		completion:    completion,
		embedding:     embedding,
		vectorIndex:   vectorIndex,
		contentSource: contentSource,
		logger:        logger,
	}
}

// GetConfig handles GET /api/config. Responds 503 unless every collaborator is configured.
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	services := ServiceStatus{
		Completion:    h.completion.Configured(),
		Embedding:     h.embedding.Configured(),
		VectorIndex:   h.vectorIndex.Configured(),
		ContentSource: h.contentSource.Configured(),
	}
	configured := services.Completion && services.Embedding && services.VectorIndex && services.ContentSource

	status := http.StatusOK
	if !configured {
		status = http.StatusServiceUnavailable
		h.logger.Debug().
			Bool("completion", services.Completion).
			Bool("embedding", services.Embedding).
			Bool("vector_index", services.VectorIndex).
			Bool("content_source", services.ContentSource).
			Msg("Configuration incomplete")
	}

	WriteJSON(w, status, ConfigResponse{Configured: configured, Services: services})
}
