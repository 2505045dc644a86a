package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/l3v3l/courier/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_id UUID NOT NULL REFERENCES users(id),
			recipient_id UUID NOT NULL REFERENCES users(id),
			body TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_recipient_created
			ON messages (recipient_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_pair_created
			ON messages (sender_id, recipient_id, created_at);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser inserts a directory entry. Re-registering an existing
// username is idempotent and returns the original row.
func (s *PostgresStore) CreateUser(ctx context.Context, id uuid.UUID, username string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username)
		VALUES ($1, $2)
		ON CONFLICT (username) DO NOTHING
		RETURNING id, username, created_at
	`, id, username).Scan(
		&user.ID,
		&user.Username,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.GetUserByUsername(ctx, username)
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, created_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Username,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, created_at
		FROM users WHERE username = $1
	`, username).Scan(
		&user.ID,
		&user.Username,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// CountUsers returns the number of directory entries.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// AppendMessage writes a message to the durable log. ID and timestamp
// are assigned by the caller so every store sees the same snapshot.
func (s *PostgresStore) AppendMessage(ctx context.Context, m *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.SenderID, m.RecipientID, m.Body, m.CreatedAt)
	return err
}

// MessagesSince retrieves messages for a recipient strictly newer than
// since, oldest first. Backfill path for recipients whose queue was
// trimmed or lost.
func (s *PostgresStore) MessagesSince(ctx context.Context, recipientID uuid.UUID, since time.Time, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, recipient_id, body, created_at
		FROM messages
		WHERE recipient_id = $1 AND created_at > $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, recipientID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ConversationMessages retrieves the message history between two users,
// newest first, older than before.
func (s *PostgresStore) ConversationMessages(ctx context.Context, userID, partnerID uuid.UUID, before time.Time, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, recipient_id, body, created_at
		FROM messages
		WHERE ((sender_id = $1 AND recipient_id = $2)
		    OR (sender_id = $2 AND recipient_id = $1))
		  AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, userID, partnerID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListConversations returns one summary per partner the user has
// exchanged messages with, most recently active first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT partner_id, username, sender_id, body, created_at FROM (
			SELECT DISTINCT ON (m.partner_id)
				m.partner_id, u.username, m.sender_id, m.body, m.created_at
			FROM (
				SELECT CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS partner_id,
					id, sender_id, body, created_at
				FROM messages
				WHERE sender_id = $1 OR recipient_id = $1
			) m
			JOIN users u ON u.id = m.partner_id
			ORDER BY m.partner_id, m.created_at DESC, m.id DESC
		) t
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var c models.Conversation
		err := rows.Scan(
			&c.PartnerID,
			&c.PartnerUsername,
			&c.LastSenderID,
			&c.LastBody,
			&c.LastCreatedAt,
		)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}

	return conversations, rows.Err()
}

// CountMessages returns the size of the durable log.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// LastMessageAt returns the timestamp of the most recent message, or
// nil when the log is empty.
func (s *PostgresStore) LastMessageAt(ctx context.Context) (*time.Time, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM messages`).Scan(&last)
	if err != nil {
		return nil, err
	}
	return last, nil
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.ID,
			&m.SenderID,
			&m.RecipientID,
			&m.Body,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
