package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	sessionCookieName = "personachat_session"
	csrfCookieName    = "personachat_csrf"
	csrfHeaderName    = "X-CSRF-Token"
	authHeaderName    = "Authorization"

	tokenBytes      = 32
	issueAttempts   = 5
	defaultTokenTTL = 24 * time.Hour
)

// Sentinel results of token validation. Handlers treat both the same way
// (401); the split exists so expiry can be observed in logs and tests.
var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token expired")
)

// Service manages visitor session tokens backed by the user_tokens table.
type Service struct {
	db  *sql.DB
	ttl time.Duration
}

// NewService constructs an auth service with the supplied session lifetime.
func NewService(db *sql.DB, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Service{db: db, ttl: ttl}
}

// IssueToken mints a random session token for the user and persists it with
// an absolute expiry. Collisions on the random token are retried a few times
// before giving up.
func (s *Service) IssueToken(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("invalid user id")
	}
	now := time.Now().UTC()
	for attempt := 0; attempt < issueAttempts; attempt++ {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, userID, now, now.Add(s.ttl),
		)
		if err == nil {
			return token, nil
		}
	}
	return "", errors.New("could not issue session token")
}

// ValidateToken resolves a session token to its user id. Expired tokens are
// deleted on sight so the table does not accumulate dead sessions.
func (s *Service) ValidateToken(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}
	var userID int64
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM user_tokens WHERE token = ?`, token,
	).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInvalidToken
		}
		return 0, fmt.Errorf("lookup session token: %w", err)
	}
	if time.Now().UTC().After(expiresAt) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, token)
		return 0, ErrTokenExpired
	}
	return userID, nil
}

// RevokeToken ends one session. Unknown tokens are a no-op so logout is
// idempotent.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("revoke session token: %w", err)
	}
	return nil
}

// NewCSRFToken returns a fresh random token for the double-submit cookie.
func (s *Service) NewCSRFToken() (string, error) {
	return newToken()
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the session cookie name.
func (s *Service) AuthCookieName() string { return sessionCookieName }

// CSRFCookieName returns the double-submit cookie name.
func (s *Service) CSRFCookieName() string { return csrfCookieName }

// CSRFHeaderName returns the header the client echoes the CSRF token in.
func (s *Service) CSRFHeaderName() string { return csrfHeaderName }

// TokenTTL reports the configured session lifetime.
func (s *Service) TokenTTL() time.Duration { return s.ttl }
