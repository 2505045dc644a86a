package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/l3v3l/courier/internal/metrics"
	"github.com/l3v3l/courier/internal/models"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func snap(id string, ts int64) models.Snapshot {
	return models.Snapshot{ID: id, From: "ana", To: "bob", Body: "hi", Timestamp: ts}
}

func TestPushAndRange(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	for i, ts := range []int64{10, 20, 30} {
		if err := s.Push(ctx, "bob", snap(fmt.Sprintf("m%d", i+1), ts)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Range(ctx, "bob", 0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if got[i].ID != want {
			t.Fatalf("entry %d: expected %s, got %s", i, want, got[i].ID)
		}
	}

	if mr.TTL(inboxKey("bob")) != queueTTL {
		t.Fatalf("expected queue TTL %v, got %v", queueTTL, mr.TTL(inboxKey("bob")))
	}
}

func TestRangeCursorIsStrictlyAfter(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	s.Push(ctx, "bob", snap("m1", 10))
	s.Push(ctx, "bob", snap("m2", 20))
	s.Push(ctx, "bob", snap("m3", 30))

	got, err := s.Range(ctx, "bob", 20, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "m3" {
		t.Fatalf("expected only m3 past cursor 20, got %v", got)
	}

	got, err = s.Range(ctx, "bob", 30, 50)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries past cursor 30, got %d", len(got))
	}
}

func TestRangeEqualTimestampsKeepInsertionOrder(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		s.Push(ctx, "bob", snap(id, 100))
	}

	got, err := s.Range(ctx, "bob", 0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ID != want {
			t.Fatalf("entry %d: expected %s, got %s", i, want, got[i].ID)
		}
	}

	// A cursor equal to the shared timestamp excludes all of them.
	got, _ = s.Range(ctx, "bob", 100, 50)
	if len(got) != 0 {
		t.Fatalf("expected no entries at cursor 100, got %d", len(got))
	}
}

func TestRangeLimit(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		s.Push(ctx, "bob", snap(fmt.Sprintf("m%d", i), int64(i)))
	}

	got, err := s.Range(ctx, "bob", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("expected oldest two entries, got %v", got)
	}
}

func TestRangeSkipsMalformedEntries(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	before := testutil.ToFloat64(metrics.QueueEntriesSkipped)

	s.Push(ctx, "bob", snap("m1", 10))
	if _, err := mr.Push(inboxKey("bob"), "{not json"); err != nil {
		t.Fatal(err)
	}
	s.Push(ctx, "bob", snap("m2", 20))

	got, err := s.Range(ctx, "bob", 0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("expected m1 and m2 around the bad entry, got %v", got)
	}

	if d := testutil.ToFloat64(metrics.QueueEntriesSkipped) - before; d != 1 {
		t.Fatalf("expected 1 skipped entry recorded, got %v", d)
	}
}

func TestPushTrimsToBound(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	extra := 5
	for i := 1; i <= queueMaxLength+extra; i++ {
		if err := s.Push(ctx, "bob", snap(fmt.Sprintf("m%05d", i), int64(i))); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := mr.List(inboxKey("bob"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != queueMaxLength {
		t.Fatalf("expected queue trimmed to %d, got %d", queueMaxLength, len(entries))
	}

	got, err := s.Range(ctx, "bob", 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	// The oldest survivors are the ones past the trimmed prefix.
	want := fmt.Sprintf("m%05d", extra+1)
	if len(got) != 1 || got[0].ID != want {
		t.Fatalf("expected oldest survivor %s, got %v", want, got)
	}
}

func TestUnavailableIsDistinguishable(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	mr.SetError("connection refused")

	if _, err := s.Range(ctx, "bob", 0, 50); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Range, got %v", err)
	}
	if err := s.Push(ctx, "bob", snap("m1", 1)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Push, got %v", err)
	}

	mr.SetError("")

	got, err := s.Range(ctx, "bob", 0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty queue after recovery, got %d entries", len(got))
	}
}

func TestPresenceLifecycle(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	if err := s.SetOnline(ctx, "ana"); err != nil {
		t.Fatal(err)
	}

	online, err := s.IsOnline(ctx, "ana")
	if err != nil {
		t.Fatal(err)
	}
	if !online {
		t.Fatal("expected ana online")
	}

	users, err := s.OnlineUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0] != "ana" {
		t.Fatalf("expected [ana], got %v", users)
	}

	if err := s.SetOffline(ctx, "ana"); err != nil {
		t.Fatal(err)
	}
	online, _ = s.IsOnline(ctx, "ana")
	if online {
		t.Fatal("expected ana offline")
	}
	users, _ = s.OnlineUsers(ctx)
	if len(users) != 0 {
		t.Fatalf("expected no online users, got %v", users)
	}
}

func TestPresenceExpiryPrunesSet(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	s.SetOnline(ctx, "ana")
	s.SetOnline(ctx, "bob")

	mr.FastForward(presenceTTL + time.Second)

	users, err := s.OnlineUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 0 {
		t.Fatalf("expected expired users gone, got %v", users)
	}

	// The stale index entries should have been removed along the way.
	members, err := mr.Members(onlineSetKey)
	if err == nil && len(members) != 0 {
		t.Fatalf("expected online set pruned, got %v", members)
	}
}

func TestUnreadCounters(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()

	s.IncrementUnread(ctx, "bob", "ana")
	s.IncrementUnread(ctx, "bob", "ana")
	s.IncrementUnread(ctx, "bob", "cara")

	counts, err := s.UnreadCounts(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if counts["ana"] != 2 || counts["cara"] != 1 {
		t.Fatalf("expected ana=2 cara=1, got %v", counts)
	}

	if err := s.ClearUnread(ctx, "bob", "ana"); err != nil {
		t.Fatal(err)
	}
	counts, _ = s.UnreadCounts(ctx, "bob")
	if _, ok := counts["ana"]; ok {
		t.Fatal("expected ana counter cleared")
	}
	if counts["cara"] != 1 {
		t.Fatalf("expected cara=1 untouched, got %v", counts)
	}

	// Counters for other recipients stay invisible.
	counts, _ = s.UnreadCounts(ctx, "ana")
	if len(counts) != 0 {
		t.Fatalf("expected no counters for ana, got %v", counts)
	}
}

func TestTypingExpires(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	if err := s.SetTyping(ctx, "ana", "bob"); err != nil {
		t.Fatal(err)
	}

	typing, err := s.IsTyping(ctx, "bob", "ana")
	if err != nil {
		t.Fatal(err)
	}
	if !typing {
		t.Fatal("expected ana typing to bob")
	}

	// Direction matters.
	typing, _ = s.IsTyping(ctx, "ana", "bob")
	if typing {
		t.Fatal("expected bob not typing to ana")
	}

	mr.FastForward(typingTTL + time.Second)
	typing, _ = s.IsTyping(ctx, "bob", "ana")
	if typing {
		t.Fatal("expected typing indicator expired")
	}
}
