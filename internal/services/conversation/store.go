// Package conversation persists the chat client's conversation snapshot in
// the key/value store.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

// StateKey is the key/value entry holding the snapshot
const StateKey = "decoupled-chat-state"

// Store reads and writes the snapshot as JSON
type Store struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
	mu     sync.Mutex // Serialises read-modify-write in Append
}

// NewStore creates a conversation store backed by kv
func NewStore(kv interfaces.KeyValueStorage, logger arbor.ILogger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Load returns the stored snapshot. Missing, unreadable or corrupt state yields
// an empty snapshot.
func (s *Store) Load(ctx context.Context) *models.ConversationSnapshot {
	data, err := s.kv.Get(ctx, StateKey)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			s.logger.Warn().Err(err).Msg("Failed to read conversation state, starting fresh")
		}
		return models.NewConversationSnapshot()
	}

	var snapshot models.ConversationSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		s.logger.Warn().Err(err).Msg("Conversation state is corrupt, starting fresh")
		return models.NewConversationSnapshot()
	}

	if snapshot.Messages == nil {
		snapshot.Messages = []models.ConversationMessage{}
	}
	if snapshot.Sources == nil {
		snapshot.Sources = []models.Article{}
	}
	return &snapshot
}

// Save replaces the stored snapshot
func (s *Store) Save(ctx context.Context, snapshot *models.ConversationSnapshot) error {
	if snapshot == nil {
		snapshot = models.NewConversationSnapshot()
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode conversation state: %w", err)
	}

	if err := s.kv.Set(ctx, StateKey, string(data), "Chat conversation snapshot"); err != nil {
		return fmt.Errorf("failed to save conversation state: %w", err)
	}

	s.logger.Debug().Int("messages", len(snapshot.Messages)).Msg("Saved conversation state")
	return nil
}

// Append adds messages to the stored snapshot and merges their sources
func (s *Store) Append(ctx context.Context, messages ...models.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.Load(ctx)
	for _, msg := range messages {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		snapshot.Messages = append(snapshot.Messages, msg)
		snapshot.AddSources(msg.Sources)
	}
	return s.Save(ctx, snapshot)
}

// Clear deletes the stored snapshot. Clearing an absent snapshot is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, StateKey); err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
		return fmt.Errorf("failed to clear conversation state: %w", err)
	}
	s.logger.Info().Msg("Cleared conversation state")
	return nil
}

var _ interfaces.ConversationStore = (*Store)(nil)
