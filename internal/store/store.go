// Package store persists conversations and their append-only message logs.
// Two backends are provided: SQLite (default) and Postgres via GORM, with an
// optional Redis cache in front of the recent-message query.
package store

import (
	"context"
	"errors"

	"github.com/careai/careai-go/internal/domain"
)

// ErrNotFound is returned when a conversation id has no record.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary of the conversation core. Messages are
// append-only; conversations are created once and updated on every turn.
// Implementations must be safe for concurrent use. Single-row inserts rely
// on store-level atomicity; there is no application-level locking across
// concurrent turns on the same conversation.
type Store interface {
	// GetConversation loads a conversation by id, or ErrNotFound.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	// InsertConversation persists a new conversation record.
	InsertConversation(ctx context.Context, c *domain.Conversation) error
	// UpdateConversation rewrites a conversation's mutable fields
	// (title, timestamps, state bag).
	UpdateConversation(ctx context.Context, c *domain.Conversation) error
	// InsertMessage appends one immutable message record.
	InsertMessage(ctx context.Context, m *domain.Message) error
	// RecentMessages returns at most limit messages of the conversation:
	// the newest limit entries by timestamp, reordered oldest-to-newest.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error)

	Close() error
}
