package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"personachat/internal/models"
)

// Driver runs one conversational turn to completion, normalizing the
// runner's raw output into an ordered, deduplicated event sequence. Each
// invocation is a fresh turn; the driver holds no cross-request state.
type Driver struct {
	runner Runner
}

// NewDriver builds a driver over the supplied runner.
func NewDriver(runner Runner) *Driver {
	return &Driver{runner: runner}
}

// RunTurn drives one turn and returns its lazy, single-consumer event
// sequence. The channel yields zero or more content events followed by
// exactly one terminal event, then closes. Content fragments never repeat
// previously emitted text; their concatenation is the full assistant reply.
//
// The user id is forwarded into the turn context so tools invoked by the
// runner can resolve the caller.
func (d *Driver) RunTurn(ctx context.Context, userID int64, userMessage string, priorHistory []models.HistoryItem) <-chan StreamEvent {
	out := make(chan StreamEvent)

	go func() {
		defer close(out)
		terminal := false
		defer func() {
			if r := recover(); r != nil && !terminal {
				log.Error().Interface("panic", r).Msg("turn panicked")
				out <- StreamEvent{Type: EventTypeError, Err: fmt.Sprintf("turn failed: %v", r)}
			}
		}()

		turnCtx := WithTurnUser(ctx, userID)

		history := make([]models.HistoryItem, 0, len(priorHistory)+2)
		history = append(history, priorHistory...)
		history = append(history, NewUserItem(userMessage))

		source, err := d.runner.StartTurn(turnCtx, history)
		if err != nil {
			terminal = true
			out <- StreamEvent{Type: EventTypeError, Err: err.Error()}
			return
		}
		defer source.Close()

		var accumulated string
		for {
			raw, err := source.Next(turnCtx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				terminal = true
				out <- StreamEvent{Type: EventTypeError, Err: err.Error()}
				return
			}
			fragment := newFragment(accumulated, raw)
			if fragment == "" {
				continue
			}
			accumulated += fragment
			out <- StreamEvent{Type: EventTypeContent, Content: fragment}
			if delay := source.Pacing(); delay > 0 && !pacingDisabled(turnCtx) {
				if !sleepCtx(turnCtx, delay) {
					terminal = true
					out <- StreamEvent{Type: EventTypeError, Err: turnCtx.Err().Error()}
					return
				}
			}
		}

		updated := history
		if items := source.NewItems(); len(items) > 0 {
			updated = append(updated, items...)
		} else {
			updated = append(updated, NewAssistantItem(accumulated))
		}

		terminal = true
		out <- StreamEvent{Type: EventTypeDone, Content: accumulated, UpdatedHistory: updated}
	}()

	return out
}

// newFragment extracts the genuinely new portion of a raw content value.
// Runners legally send bare suffixes, suffix-extended text, or the full
// accumulated text; when none of those shapes match, the value is forwarded
// verbatim rather than dropped, even though that may render a duplicate.
func newFragment(accumulated, raw string) string {
	if accumulated == "" {
		return raw
	}
	if strings.HasPrefix(raw, accumulated) {
		return raw[len(accumulated):]
	}
	if idx := strings.Index(raw, accumulated); idx >= 0 {
		return raw[idx+len(accumulated):]
	}
	return raw
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
