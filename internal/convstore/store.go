package convstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"personachat/internal/models"
	"personachat/internal/redis"
)

// Store persists per-user conversation state in redis under a fixed
// retention window. Each turn performs one read at its start and one write at
// its end; a user is expected to have at most one turn in flight, so writes
// are last-write-wins.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// DefaultTTL is the retention window for untouched conversations.
const DefaultTTL = 7 * 24 * time.Hour

// NewStore builds a conversation store with the supplied retention window.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func conversationKey(userID int64) string {
	return fmt.Sprintf("conversation:%d", userID)
}

// Get loads the conversation for the user, or nil when none exists.
func (s *Store) Get(ctx context.Context, userID int64) (*models.ConversationState, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("conversation store not initialized")
	}
	raw, err := s.client.Get(ctx, conversationKey(userID))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	var state models.ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &state, nil
}

// AppendTurn records one completed turn: both display messages are appended
// and the runner history is replaced with the new authoritative sequence.
// This is the single write of a turn; error turns never reach it.
func (s *Store) AppendTurn(ctx context.Context, userID int64, userMsg, assistantMsg models.Message, newHistory []models.HistoryItem) (*models.ConversationState, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("conversation store not initialized")
	}
	state, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &models.ConversationState{UserID: userID}
	}
	state.Messages = append(state.Messages, userMsg, assistantMsg)
	state.AgentHistory = newHistory

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode conversation: %w", err)
	}
	if err := s.client.Set(ctx, conversationKey(userID), data, s.ttl); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return state, nil
}

// Clear deletes the stored conversation for the user.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	if s == nil || s.client == nil {
		return errors.New("conversation store not initialized")
	}
	if err := s.client.Del(ctx, conversationKey(userID)); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}
