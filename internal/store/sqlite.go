package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/l3v3l/courier/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/courier.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/courier.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL REFERENCES users(id),
		recipient_id TEXT NOT NULL REFERENCES users(id),
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	CREATE INDEX IF NOT EXISTS idx_messages_recipient_created ON messages(recipient_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_pair_created ON messages(sender_id, recipient_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser inserts a directory entry. Re-registering an existing
// username is idempotent and returns the original row.
func (s *SQLiteStore) CreateUser(ctx context.Context, id uuid.UUID, username string) (*models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (id, username, created_at)
		VALUES (?, ?, ?)
	`, id.String(), username, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	return s.GetUserByUsername(ctx, username)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, created_at
		FROM users WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&user.Username,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, created_at
		FROM users WHERE username = ?
	`, username).Scan(
		&idStr,
		&user.Username,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	return user, nil
}

// CountUsers returns the number of directory entries.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// AppendMessage writes a message to the durable log. ID and timestamp
// are assigned by the caller so every store sees the same snapshot.
func (s *SQLiteStore) AppendMessage(ctx context.Context, m *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.SenderID.String(), m.RecipientID.String(), m.Body, m.CreatedAt)
	return err
}

// MessagesSince retrieves messages for a recipient strictly newer than
// since, oldest first.
func (s *SQLiteStore) MessagesSince(ctx context.Context, recipientID uuid.UUID, since time.Time, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, recipient_id, body, created_at
		FROM messages
		WHERE recipient_id = ? AND created_at > ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, recipientID.String(), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteMessages(rows)
}

// ConversationMessages retrieves the message history between two users,
// newest first, older than before.
func (s *SQLiteStore) ConversationMessages(ctx context.Context, userID, partnerID uuid.UUID, before time.Time, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, recipient_id, body, created_at
		FROM messages
		WHERE ((sender_id = ? AND recipient_id = ?)
		    OR (sender_id = ? AND recipient_id = ?))
		  AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID.String(), partnerID.String(), partnerID.String(), userID.String(), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteMessages(rows)
}

// ListConversations returns one summary per partner the user has
// exchanged messages with, most recently active first. The window
// ranking keeps created_at a plain column reference, which the sqlite3
// driver needs to scan it as a time.Time.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT partner_id, username, sender_id, body, created_at
		FROM (
			SELECT CASE WHEN m.sender_id = ?1 THEN m.recipient_id ELSE m.sender_id END AS partner_id,
				u.username, m.sender_id, m.body, m.created_at,
				ROW_NUMBER() OVER (
					PARTITION BY CASE WHEN m.sender_id = ?1 THEN m.recipient_id ELSE m.sender_id END
					ORDER BY m.created_at DESC, m.id DESC
				) AS rn
			FROM messages m
			JOIN users u ON u.id = CASE WHEN m.sender_id = ?1 THEN m.recipient_id ELSE m.sender_id END
			WHERE m.sender_id = ?1 OR m.recipient_id = ?1
		)
		WHERE rn = 1
		ORDER BY created_at DESC
		LIMIT ?2
	`, userID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var c models.Conversation
		var partnerStr, senderStr string
		err := rows.Scan(
			&partnerStr,
			&c.PartnerUsername,
			&senderStr,
			&c.LastBody,
			&c.LastCreatedAt,
		)
		if err != nil {
			return nil, err
		}
		c.PartnerID = uuid.MustParse(partnerStr)
		c.LastSenderID = uuid.MustParse(senderStr)
		conversations = append(conversations, c)
	}

	return conversations, rows.Err()
}

// CountMessages returns the size of the durable log.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// LastMessageAt returns the timestamp of the most recent message, or
// nil when the log is empty.
func (s *SQLiteStore) LastMessageAt(ctx context.Context) (*time.Time, error) {
	var last time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM messages
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &last, nil
}

func scanSQLiteMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var senderStr, recipientStr string
		err := rows.Scan(
			&m.ID,
			&senderStr,
			&recipientStr,
			&m.Body,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		m.SenderID = uuid.MustParse(senderStr)
		m.RecipientID = uuid.MustParse(recipientStr)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
