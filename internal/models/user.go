package models

import "time"

// User is a registered account. DisplayName and Email feed the caller
// identity tool so the agent can pre-fill booking details.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
