package interfaces

import (
	"context"

	"github.com/ternarybob/decoupled/internal/models"
)

// ChatService answers one conversation turn, optionally grounding the answer
// with a semantic search tool call.
type ChatService interface {
	// Chat takes the prior conversation plus the newest user turn (last element)
	// and returns the assistant reply with the articles it used. The input slice
	// is never modified.
	Chat(ctx context.Context, messages []models.ChatMessage) (*models.ChatReply, error)

	// Configured reports whether the completion service is configured.
	Configured() bool
}
