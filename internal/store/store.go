package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered or guest user.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsGuest      bool
	CreatedAt    time.Time
}

// Message is the persisted form of a chat message. Either RoomID or
// RecipientID is set, mirroring the in-memory model.
type Message struct {
	ID          string
	RoomID      string
	RecipientID string
	SenderID    string
	SenderName  string
	Text        string
	CreatedAt   time.Time
}

// UserStore handles user persistence for the REST auth surface.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user.
	CreateGuestUser(ctx context.Context, username string) (*User, error)

	// GetUserByID retrieves a user by id.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// MessageStore is the best-effort durability sink for chat messages.
// Writes are fire-and-forget from the caller's perspective; a failure is
// logged by the caller and never affects in-memory delivery.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *Message) error
}

// PresenceStore records last-known user status for collaborators that
// read durable state. The in-memory registry remains the source of truth.
type PresenceStore interface {
	SetUserStatus(ctx context.Context, userID, status string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	PresenceStore

	// Close closes the underlying database connection.
	Close() error
}
