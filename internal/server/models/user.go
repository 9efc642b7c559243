// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account that can own API keys and obtain bearer tokens.
// PasswordHash always holds a hash, never the raw password.
type User struct {
	ID           int64
	UserName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
