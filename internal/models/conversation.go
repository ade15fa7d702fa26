package models

import "time"

// Conversation roles accepted from clients.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is one persisted turn. Only assistant messages carry sources.
type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sources   []Article `json:"sources,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationSnapshot is the client-side conversation state kept between sessions.
type ConversationSnapshot struct {
	Messages []ConversationMessage `json:"messages"`
	Sources  []Article             `json:"sources"`
}

// NewConversationSnapshot returns an empty snapshot with non-nil slices.
func NewConversationSnapshot() *ConversationSnapshot {
	return &ConversationSnapshot{
		Messages: []ConversationMessage{},
		Sources:  []Article{},
	}
}

// ChatMessage is the normalized {role, content} form sent to the orchestrator.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// ChatReply is the result of one chat turn.
type ChatReply struct {
	Message string    `json:"message"`
	Sources []Article `json:"sources"`
}

// History converts persisted messages into orchestrator input, dropping client-only fields.
func (s *ConversationSnapshot) History() []ChatMessage {
	history := make([]ChatMessage, 0, len(s.Messages))
	for _, msg := range s.Messages {
		history = append(history, ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	return history
}

// AddSources merges sources into the snapshot-wide list, keeping first-seen order.
func (s *ConversationSnapshot) AddSources(sources []Article) {
	s.Sources = MergeArticles(s.Sources, sources)
}

// MergeArticles appends articles not already present (by ID) to existing.
func MergeArticles(existing []Article, incoming []Article) []Article {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, article := range existing {
		seen[article.ID] = struct{}{}
	}
	for _, article := range incoming {
		if _, ok := seen[article.ID]; ok {
			continue
		}
		seen[article.ID] = struct{}{}
		existing = append(existing, article)
	}
	return existing
}
