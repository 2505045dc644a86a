package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a directory entry mirrored from the platform's account
// system. Courier only needs enough to address and display messages.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation summarizes one partner thread for a user: the partner,
// the most recent message between the pair, and when it was sent.
// Unread counts are layered on from the fast store by the handler.
type Conversation struct {
	PartnerID       uuid.UUID `json:"partner_id"`
	PartnerUsername string    `json:"partner_username"`
	LastSenderID    uuid.UUID `json:"last_sender_id"`
	LastBody        string    `json:"last_body"`
	LastCreatedAt   time.Time `json:"last_created_at"`
	UnreadCount     int64     `json:"unread_count"`
}
