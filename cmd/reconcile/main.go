// Command reconcile rebuilds a user's delivery queue from the durable
// log after fast-store data loss. It pushes only messages newer than
// the newest entry already queued, so re-running it is safe.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/l3v3l/courier/internal/config"
	"github.com/l3v3l/courier/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: reconcile <user-id>")
		os.Exit(1)
	}

	userID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid user ID:", err)
		os.Exit(1)
	}

	cfg := config.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	ctx := context.Background()

	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
	}
	defer db.Close()

	queue, err := store.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer queue.Close()

	if _, err := db.GetUserByID(ctx, userID); err != nil {
		logger.Fatal().Err(err).Str("user_id", userID.String()).Msg("user lookup failed")
	}

	// Find the newest entry still in the queue; everything after it in
	// the durable log is missing. Queue timestamps are millisecond
	// precision while the log keeps more, so same-millisecond survivors
	// are deduplicated by ID rather than excluded by time.
	entries, err := queue.Range(ctx, userID.String(), 0, 1000)
	if err != nil {
		logger.Fatal().Err(err).Msg("queue read failed")
	}
	queued := make(map[string]bool, len(entries))
	var newest int64
	for _, e := range entries {
		queued[e.ID] = true
		if e.Timestamp > newest {
			newest = e.Timestamp
		}
	}

	messages, err := db.MessagesSince(ctx, userID, time.UnixMilli(newest).UTC(), 1000)
	if err != nil {
		logger.Fatal().Err(err).Msg("durable log read failed")
	}

	pushed := 0
	for i := range messages {
		if queued[messages[i].ID] {
			continue
		}
		if err := queue.Push(ctx, userID.String(), messages[i].Snapshot()); err != nil {
			logger.Fatal().Err(err).Int("pushed", pushed).Msg("queue push failed")
		}
		pushed++
	}

	logger.Info().
		Str("user_id", userID.String()).
		Int("already_queued", len(entries)).
		Int("pushed", pushed).
		Msg("reconcile complete")
}
