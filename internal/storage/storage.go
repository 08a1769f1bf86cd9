// Package storage defines the persistence contracts used by the chat subsystem.
// Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Vasu1712/legalwise-backend/internal/models"
)

var (
	// ErrNotFound is returned when a conversation or user does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a conversation for the same client/lawyer pair already exists.
	ErrDuplicate = errors.New("storage: duplicate conversation")
)

// ConversationStore reads and mutates Conversation rows.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// GetConversationForUpdate is GetConversation plus a row lock held until the transaction ends.
	// Outside a transaction it behaves like GetConversation.
	GetConversationForUpdate(ctx context.Context, id string) (*models.Conversation, error)
	GetConversationByPair(ctx context.Context, clientID, lawyerID string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	// ListConversations returns the conversations of userID on the given side,
	// most recently active first.
	ListConversations(ctx context.Context, userID string, side models.Side) ([]models.Conversation, error)
	IncrementUnread(ctx context.Context, id string, side models.Side) error
	ResetUnread(ctx context.Context, id string, side models.Side) error
	UpdateSummary(ctx context.Context, id, text string, at time.Time) error
}

// MessageStore appends and reads Message rows.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *models.Message) error
	// ListMessages returns messages ordered by timestamp, insertion order breaking ties.
	ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, error)
	// MarkReadExceptSender flips read on every unread message not sent by reader
	// (matched on id and role) and returns how many changed.
	MarkReadExceptSender(ctx context.Context, conversationID string, reader models.User) (int64, error)
}

// UserDirectory resolves client and lawyer profiles.
type UserDirectory interface {
	GetUser(ctx context.Context, id string, role models.Role) (*models.User, error)
}

// Tx is the view of the store available inside WithinTx.
type Tx interface {
	ConversationStore
	MessageStore
}

// Store is the full persistence collaborator of the chat subsystem.
type Store interface {
	Tx
	UserDirectory
	// WithinTx runs fn atomically: every write made through tx is committed when fn
	// returns nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
