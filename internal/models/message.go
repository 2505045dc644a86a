package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Message is a durably stored direct message between two users.
type Message struct {
	ID          string    `json:"id"`
	SenderID    uuid.UUID `json:"from"`
	RecipientID uuid.UUID `json:"to"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewMessage assigns the server-side identity of a message: a ULID
// (lexically sortable by creation time) and the ingestion timestamp.
// Both stores persist the same snapshot, so assignment happens once,
// before any write.
func NewMessage(senderID, recipientID uuid.UUID, body string) *Message {
	return &Message{
		ID:          ulid.Make().String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}
}

// Snapshot is the wire form of a message: what the queue stores and
// what poll and history responses carry. Timestamps travel as Unix
// milliseconds so cursor comparison is a plain integer compare.
type Snapshot struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// Snapshot converts the durable form to the wire form.
func (m *Message) Snapshot() Snapshot {
	return Snapshot{
		ID:        m.ID,
		From:      m.SenderID.String(),
		To:        m.RecipientID.String(),
		Body:      m.Body,
		Timestamp: m.CreatedAt.UnixMilli(),
	}
}

// MaxBodyLength is the longest message body accepted at ingestion,
// in runes.
const MaxBodyLength = 1000
