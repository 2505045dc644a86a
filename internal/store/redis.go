package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/l3v3l/courier/internal/metrics"
	"github.com/l3v3l/courier/internal/models"
)

const (
	// queueMaxLength bounds each recipient's delivery queue. Older
	// entries are trimmed away; the durable log keeps the full history.
	queueMaxLength = 1000

	queueTTL    = 30 * 24 * time.Hour
	unreadTTL   = 30 * 24 * time.Hour
	presenceTTL = 5 * time.Minute
	typingTTL   = 5 * time.Second

	onlineSetKey = "online_users"
)

// RedisStore is the fast delivery queue plus the ephemeral state that
// rides along with it (presence, unread counters, typing indicators).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying connection for middleware that keeps
// its own keyspace (rate limiting, IP blocks).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// unavailable tags transport-level failures so callers can tell
// "unreachable" apart from "empty".
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// inboxKey returns the key for a recipient's delivery queue.
func inboxKey(recipientID string) string {
	return fmt.Sprintf("messages:%s", recipientID)
}

// onlineKey returns the presence key for a user.
func onlineKey(userID string) string {
	return fmt.Sprintf("online:%s", userID)
}

// unreadKey returns the key for an unread counter, per sender.
func unreadKey(recipientID, senderID string) string {
	return fmt.Sprintf("unread:%s:%s", recipientID, senderID)
}

// typingKey returns the key for a typing indicator.
func typingKey(recipientID, senderID string) string {
	return fmt.Sprintf("typing:%s:%s", recipientID, senderID)
}

// Push appends an entry to the recipient's delivery queue, trims the
// queue to its bound from the oldest end, and refreshes the rolling
// TTL. The three commands travel in one pipeline.
func (s *RedisStore) Push(ctx context.Context, recipientID string, entry models.Snapshot) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := inboxKey(recipientID)

	start := time.Now()
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -queueMaxLength, -1)
	pipe.Expire(ctx, key, queueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	metrics.RedisLatency.Observe(time.Since(start).Seconds())

	return nil
}

// Range returns up to limit entries newer than sinceMillis, oldest
// first. Queue order is insertion order; entries with equal timestamps
// are never re-sorted. Entries that fail to decode are skipped so one
// bad write cannot wedge a recipient's polling.
func (s *RedisStore) Range(ctx context.Context, recipientID string, sinceMillis int64, limit int) ([]models.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	start := time.Now()
	results, err := s.client.LRange(ctx, inboxKey(recipientID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	metrics.RedisLatency.Observe(time.Since(start).Seconds())

	entries := make([]models.Snapshot, 0, limit)
	for _, data := range results {
		var entry models.Snapshot
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			metrics.QueueEntriesSkipped.Inc()
			continue
		}
		if entry.Timestamp <= sinceMillis {
			continue
		}
		entries = append(entries, entry)
		if len(entries) >= limit {
			break
		}
	}

	return entries, nil
}

// SetOnline marks a user online: a per-user key with a presence TTL
// plus membership in the online set.
func (s *RedisStore) SetOnline(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	pipe.Set(ctx, onlineKey(userID), "1", presenceTTL)
	pipe.SAdd(ctx, onlineSetKey, userID)
	_, err := pipe.Exec(ctx)
	return unavailable(err)
}

// SetOffline removes a user's presence immediately.
func (s *RedisStore) SetOffline(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, onlineKey(userID))
	pipe.SRem(ctx, onlineSetKey, userID)
	_, err := pipe.Exec(ctx)
	return unavailable(err)
}

// IsOnline reports whether a user's presence key is still live.
func (s *RedisStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, onlineKey(userID)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// OnlineUsers returns the users whose presence keys are still live.
// Set members whose keys have expired are pruned as they are found;
// the set is an index, the TTL keys are the truth.
func (s *RedisStore) OnlineUsers(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	online := make([]string, 0, len(members))
	for _, id := range members {
		n, err := s.client.Exists(ctx, onlineKey(id)).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		if n == 0 {
			s.client.SRem(ctx, onlineSetKey, id)
			continue
		}
		online = append(online, id)
	}

	return online, nil
}

// IncrementUnread bumps the per-sender unread counter for a recipient.
func (s *RedisStore) IncrementUnread(ctx context.Context, recipientID, senderID string) error {
	key := unreadKey(recipientID, senderID)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, unreadTTL)
	_, err := pipe.Exec(ctx)
	return unavailable(err)
}

// UnreadCounts returns the recipient's unread counters keyed by sender.
func (s *RedisStore) UnreadCounts(ctx context.Context, recipientID string) (map[string]int64, error) {
	prefix := fmt.Sprintf("unread:%s:", recipientID)

	counts := make(map[string]int64)
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		n, err := s.client.Get(ctx, key).Int64()
		if err != nil {
			continue
		}
		if n > 0 {
			counts[strings.TrimPrefix(key, prefix)] = n
		}
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable(err)
	}

	return counts, nil
}

// ClearUnread resets the unread counter for one sender.
func (s *RedisStore) ClearUnread(ctx context.Context, recipientID, senderID string) error {
	err := s.client.Del(ctx, unreadKey(recipientID, senderID)).Err()
	return unavailable(err)
}

// SetTyping marks the sender as typing to the recipient. The key
// expires on its own; clients just stop refreshing it.
func (s *RedisStore) SetTyping(ctx context.Context, senderID, recipientID string) error {
	err := s.client.Set(ctx, typingKey(recipientID, senderID), "1", typingTTL).Err()
	return unavailable(err)
}

// IsTyping reports whether a sender is currently typing to a recipient.
func (s *RedisStore) IsTyping(ctx context.Context, recipientID, senderID string) (bool, error) {
	n, err := s.client.Exists(ctx, typingKey(recipientID, senderID)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}
