package agent

import "context"

type turnUserContextKey struct{}

type noPacingKey struct{}

// WithTurnUser scopes the acting user to the turn's context so tools invoked
// by the runner can resolve the caller without shared mutable state.
func WithTurnUser(ctx context.Context, userID int64) context.Context {
	if userID <= 0 {
		return ctx
	}
	return context.WithValue(ctx, turnUserContextKey{}, userID)
}

// TurnUserFromContext returns the user the current turn is running for.
func TurnUserFromContext(ctx context.Context) (int64, bool) {
	val := ctx.Value(turnUserContextKey{})
	if val == nil {
		return 0, false
	}
	userID, ok := val.(int64)
	return userID, ok
}

// WithoutPacing disables inter-fragment delays for the turn. Used by
// non-streaming callers that collect the full reply before responding.
func WithoutPacing(ctx context.Context) context.Context {
	return context.WithValue(ctx, noPacingKey{}, true)
}

func pacingDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noPacingKey{}).(bool)
	return v
}
