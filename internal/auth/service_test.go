package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"personachat/internal/config"
	"personachat/internal/storage"
)

func TestAuthIssueValidateRevoke(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 1)

	svc := NewService(db, time.Hour)
	token, err := svc.IssueToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	userID, err := svc.ValidateToken(context.Background(), token)
	if err != nil || userID != 1 {
		t.Fatalf("ValidateToken failed: id=%d err=%v", userID, err)
	}
	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("RevokeToken error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}

	// revoking an already-revoked token is a no-op
	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("second RevokeToken error: %v", err)
	}
}

func TestAuthValidateExpiredToken(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 2)

	svc := NewService(db, 10*time.Millisecond)
	token, err := svc.IssueToken(context.Background(), 2)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := svc.ValidateToken(context.Background(), token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	// ensure token removed
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens WHERE token = ?`, token).Scan(&count); err != nil {
		t.Fatalf("query tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expired token not purged")
	}
}

func TestAuthRejectsUnknownToken(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, time.Hour)
	if _, err := svc.ValidateToken(context.Background(), "no-such-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown token, got %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestAuthServiceDefaults(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	svc := NewService(db, 0)
	if got := svc.TokenTTL(); got != 24*time.Hour {
		t.Fatalf("default TTL = %v, want 24h", got)
	}
	if svc.AuthCookieName() != "personachat_session" {
		t.Fatalf("unexpected session cookie name %q", svc.AuthCookieName())
	}
	if svc.CSRFCookieName() != "personachat_csrf" {
		t.Fatalf("unexpected csrf cookie name %q", svc.CSRFCookieName())
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func insertUser(t *testing.T, db *sql.DB, id int64) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO users (id, username, display_name, email, password_hash, created_at) VALUES (?, ?, '', '', 'hash', ?)`,
		id, fmt.Sprintf("user_%d", id), time.Now().UTC(),
	); err != nil {
		t.Fatalf("insert user: %v", err)
	}
}
