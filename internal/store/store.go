package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/l3v3l/courier/internal/models"
)

// ErrNotFound is returned when a lookup names a user or message that
// does not exist in the durable store.
var ErrNotFound = errors.New("not found")

// ErrUnavailable is returned when the fast store cannot be reached.
// Callers must treat it as "state unknown", never as "empty".
var ErrUnavailable = errors.New("fast store unavailable")

// DataStore is the durable message log and user directory. Both
// PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Directory operations
	CreateUser(ctx context.Context, id uuid.UUID, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Message log operations
	AppendMessage(ctx context.Context, m *models.Message) error
	MessagesSince(ctx context.Context, recipientID uuid.UUID, since time.Time, limit int) ([]models.Message, error)
	ConversationMessages(ctx context.Context, userID, partnerID uuid.UUID, before time.Time, limit int) ([]models.Message, error)
	ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]models.Conversation, error)
	CountMessages(ctx context.Context) (int64, error)
	LastMessageAt(ctx context.Context) (*time.Time, error)
}

// Queue is the fast store reached only through this narrow interface.
// Pushes are best-effort; reads distinguish "empty" from "unreachable"
// via ErrUnavailable.
type Queue interface {
	Close() error
	Ping(ctx context.Context) error

	// Delivery queue
	Push(ctx context.Context, recipientID string, entry models.Snapshot) error
	Range(ctx context.Context, recipientID string, sinceMillis int64, limit int) ([]models.Snapshot, error)

	// Presence
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	OnlineUsers(ctx context.Context) ([]string, error)

	// Unread counters
	IncrementUnread(ctx context.Context, recipientID, senderID string) error
	UnreadCounts(ctx context.Context, recipientID string) (map[string]int64, error)
	ClearUnread(ctx context.Context, recipientID, senderID string) error

	// Typing indicators
	SetTyping(ctx context.Context, senderID, recipientID string) error
	IsTyping(ctx context.Context, recipientID, senderID string) (bool, error)
}
