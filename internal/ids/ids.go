package ids

import (
	"github.com/google/uuid"
)

// NewUUIDv7 generates a time-ordered UUID v7. User IDs sort by
// creation time, which keeps directory indexes append-friendly.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
