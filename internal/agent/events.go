package agent

import "personachat/internal/models"

// EventType tags the variants of a StreamEvent.
type EventType string

const (
	// EventTypeContent carries a fragment of assistant output that is
	// guaranteed not to overlap anything emitted earlier in the turn.
	EventTypeContent EventType = "content"
	// EventTypeDone is the terminal success event.
	EventTypeDone EventType = "done"
	// EventTypeError is the terminal failure event.
	EventTypeError EventType = "error"
)

// StreamEvent is one element of the driver's output sequence. A turn yields
// zero or more content events followed by exactly one terminal event (done or
// error) and nothing after it.
type StreamEvent struct {
	Type EventType

	// Content is the new fragment for content events, or the full
	// assistant message on done.
	Content string

	// UpdatedHistory is the authoritative runner history to persist.
	// Set only on done.
	UpdatedHistory []models.HistoryItem

	// Err describes the failure on error events.
	Err string
}
