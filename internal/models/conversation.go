package models

import "encoding/json"

// HistoryItem is one entry of the remote agent runner's structured history.
// The payload is understood only by the runner; everything above it appends
// new items and round-trips the sequence unchanged. It is never reordered,
// filtered, or rebuilt from the display messages.
type HistoryItem = json.RawMessage

// ConversationState holds both projections of a user's conversation: the
// display messages shown in the UI and the runner history blob. After every
// completed turn Messages gains exactly one user and one assistant entry and
// AgentHistory gains the matching runner items.
type ConversationState struct {
	UserID       int64         `json:"user_id"`
	Messages     []Message     `json:"messages"`
	AgentHistory []HistoryItem `json:"agent_history"`
}
