package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

// maxChatBodyBytes bounds the request body of a chat turn
const maxChatBodyBytes = 1 << 20

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Messages []models.ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

// ChatHandler handles chat turns
type ChatHandler struct {
	chatService interfaces.ChatService
	validate    *validator.Validate
	logger      arbor.ILogger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService interfaces.ChatService, logger arbor.ILogger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		validate:    validator.New(),
		logger:      logger,
	}
}

var chatErrorMessages = map[int]string{
	http.StatusBadRequest:         "Messages array is required",
	http.StatusServiceUnavailable: "Chat is not configured. Set the completion provider, Gemini and Pinecone API keys.",
}

// ChatHandler handles POST /api/chat
func (h *ChatHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn().Err(err).Msg("Invalid chat request body")
		WriteError(w, http.StatusBadRequest, chatErrorMessages[http.StatusBadRequest])
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.logger.Warn().Err(err).Msg("Chat request failed validation")
		WriteError(w, http.StatusBadRequest, chatErrorMessages[http.StatusBadRequest])
		return
	}

	reply, err := h.chatService.Chat(r.Context(), req.Messages)
	if err != nil {
		writeQueryError(w, h.logger, err, chatErrorMessages, "Chat failed. Please try again.")
		return
	}

	WriteJSON(w, http.StatusOK, reply)
}
