package courier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pollRecorder tracks the cursor value of every poll request the test
// server sees.
type pollRecorder struct {
	mu     sync.Mutex
	sinces []int64
}

func (r *pollRecorder) add(since int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinces = append(r.sinces, since)
	return len(r.sinces)
}

func (r *pollRecorder) get() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.sinces...)
}

// newPollServer runs a poll endpoint whose responses come from the
// respond function, keyed by request ordinal and the client's cursor.
func newPollServer(t *testing.T, respond func(n int, since int64) (int, []Message)) (*Client, *pollRecorder) {
	t.Helper()
	rec := &pollRecorder{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
		n := rec.add(since)

		status, msgs := respond(n, since)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"message queue unavailable"}`))
			return
		}
		if msgs == nil {
			msgs = []Message{}
		}
		json.NewEncoder(w).Encode(PollResponse{Messages: msgs})
	}))
	t.Cleanup(srv.Close)

	client := &Client{
		BaseURL:    srv.URL,
		UserID:     "u1",
		HTTPClient: srv.Client(),
	}
	return client, rec
}

// after filters entries the way the real queue does: strictly newer
// than the cursor.
func after(entries []Message, since int64) []Message {
	var out []Message
	for _, m := range entries {
		if m.Timestamp > since {
			out = append(out, m)
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func recv(t *testing.T, ch chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivery")
		return Message{}
	}
}

func TestPollerDeliversAndAdvancesCursor(t *testing.T) {
	batch := []Message{
		{ID: "m1", From: "p1", To: "u1", Body: "one", Timestamp: 100},
		{ID: "m2", From: "p1", To: "u1", Body: "two", Timestamp: 200},
	}
	client, rec := newPollServer(t, func(n int, since int64) (int, []Message) {
		return http.StatusOK, after(batch, since)
	})

	delivered := make(chan Message, 10)
	p := NewPoller(client, PollerConfig{Interval: 5 * time.Millisecond})
	p.OnMessage(func(m Message) { delivered <- m })
	p.Start()
	defer p.Stop()

	if m := recv(t, delivered); m.ID != "m1" {
		t.Fatalf("expected m1 first, got %s", m.ID)
	}
	if m := recv(t, delivered); m.ID != "m2" {
		t.Fatalf("expected m2 second, got %s", m.ID)
	}

	waitFor(t, func() bool {
		s := rec.get()
		return len(s) >= 2 && s[1] == 200
	}, "expected the second poll to carry the advanced cursor")

	if got := p.Since(); got != 200 {
		t.Fatalf("expected cursor 200, got %d", got)
	}

	// Nothing is delivered twice.
	time.Sleep(30 * time.Millisecond)
	if len(delivered) != 0 {
		t.Fatalf("expected no further deliveries, got %d", len(delivered))
	}
}

func TestPollerPartnerFilterAdvancesPastOthers(t *testing.T) {
	batch := []Message{
		{ID: "bg", From: "p2", To: "u1", Body: "background", Timestamp: 100},
		{ID: "fg", From: "p1", To: "u1", Body: "active", Timestamp: 200},
	}
	client, rec := newPollServer(t, func(n int, since int64) (int, []Message) {
		return http.StatusOK, after(batch, since)
	})

	delivered := make(chan Message, 10)
	p := NewPoller(client, PollerConfig{Interval: 5 * time.Millisecond})
	p.OnMessage(func(m Message) { delivered <- m })

	// Setting the filter while idle does not start the loop.
	p.SwitchPartner("p1")
	if p.State() != StateIdle {
		t.Fatal("expected the poller to stay idle")
	}
	if p.Partner() != "p1" {
		t.Fatalf("expected partner p1, got %s", p.Partner())
	}

	p.Start()
	defer p.Stop()

	// Only the active partner's message is delivered, but the cursor
	// moves past both; the other surfaces via unread counts instead.
	if m := recv(t, delivered); m.ID != "fg" {
		t.Fatalf("expected only the active partner's message, got %s", m.ID)
	}
	if got := p.Since(); got != 200 {
		t.Fatalf("expected cursor 200, got %d", got)
	}

	waitFor(t, func() bool {
		s := rec.get()
		return len(s) >= 2 && s[1] == 200
	}, "expected the cursor to advance past the filtered entry")

	time.Sleep(30 * time.Millisecond)
	if len(delivered) != 0 {
		t.Fatalf("expected exactly one delivery, got %d extra", len(delivered))
	}
}

func TestPollerSwitchDiscardsInFlightResponse(t *testing.T) {
	firstStarted := make(chan struct{})
	release := make(chan struct{})
	batch := []Message{
		{ID: "m1", From: "p2", To: "u1", Body: "hi", Timestamp: 100},
	}

	client, rec := newPollServer(t, func(n int, since int64) (int, []Message) {
		if n == 1 {
			close(firstStarted)
			<-release
		}
		return http.StatusOK, after(batch, since)
	})

	delivered := make(chan Message, 10)
	p := NewPoller(client, PollerConfig{Interval: 5 * time.Millisecond})
	p.OnMessage(func(m Message) { delivered <- m })

	p.SwitchPartner("p1")
	p.Start()
	defer p.Stop()

	<-firstStarted

	// Switch while the first poll is stuck in flight. Its response
	// belongs to the old view and must not advance the cursor, so the
	// entry arrives again under the new filter.
	p.SwitchPartner("p2")
	close(release)

	if m := recv(t, delivered); m.ID != "m1" {
		t.Fatalf("expected m1 under the new filter, got %s", m.ID)
	}
	if got := p.Partner(); got != "p2" {
		t.Fatalf("expected partner p2, got %s", got)
	}
	if got := p.Since(); got != 100 {
		t.Fatalf("expected cursor 100, got %d", got)
	}

	// The poll after the switch started from the untouched cursor.
	sinces := rec.get()
	if len(sinces) < 2 || sinces[0] != 0 || sinces[1] != 0 {
		t.Fatalf("expected the re-poll to reuse cursor 0, got %v", sinces)
	}

	time.Sleep(30 * time.Millisecond)
	if len(delivered) != 0 {
		t.Fatalf("expected exactly one delivery, got %d extra", len(delivered))
	}
}

func TestPollerStopIsSynchronous(t *testing.T) {
	firstStarted := make(chan struct{})
	release := make(chan struct{})
	batch := []Message{
		{ID: "m1", From: "p1", To: "u1", Body: "hi", Timestamp: 100},
	}

	client, _ := newPollServer(t, func(n int, since int64) (int, []Message) {
		if n == 1 {
			close(firstStarted)
			<-release
		}
		return http.StatusOK, after(batch, since)
	})

	delivered := make(chan Message, 10)
	p := NewPoller(client, PollerConfig{Interval: 5 * time.Millisecond})
	p.OnMessage(func(m Message) { delivered <- m })
	p.Start()

	<-firstStarted

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a poll was in flight")
	}
	close(release)

	if p.State() != StateIdle {
		t.Fatalf("expected idle after Stop, got %v", p.State())
	}

	// The aborted poll delivers nothing and leaves the cursor alone.
	time.Sleep(30 * time.Millisecond)
	if len(delivered) != 0 {
		t.Fatal("expected no deliveries after Stop returned")
	}
	if got := p.Since(); got != 0 {
		t.Fatalf("expected cursor untouched, got %d", got)
	}

	// Stopping again is a no-op.
	p.Stop()

	// Restarting re-fetches from the same cursor.
	p.Start()
	defer p.Stop()
	if m := recv(t, delivered); m.ID != "m1" {
		t.Fatalf("expected m1 after restart, got %s", m.ID)
	}
}

func TestPollerBackoffAndRecovery(t *testing.T) {
	var healthy atomic.Bool
	client, rec := newPollServer(t, func(n int, since int64) (int, []Message) {
		if !healthy.Load() {
			return http.StatusServiceUnavailable, nil
		}
		return http.StatusOK, nil
	})

	p := NewPoller(client, PollerConfig{
		Interval:         5 * time.Millisecond,
		MaxBackoff:       40 * time.Millisecond,
		FailureThreshold: 3,
	})
	p.Start()
	defer p.Stop()

	waitFor(t, func() bool { return p.State() == StateBackoff },
		"expected backoff after repeated failures")
	if got := len(rec.get()); got < 3 {
		t.Fatalf("expected at least 3 failed polls before backoff, got %d", got)
	}

	healthy.Store(true)

	waitFor(t, func() bool { return p.State() == StatePolling },
		"expected recovery once the endpoint is healthy")
}

func TestPollerSingleInFlight(t *testing.T) {
	var active, maxActive int32
	client, rec := newPollServer(t, func(n int, since int64) (int, []Message) {
		cur := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if cur <= m || atomic.CompareAndSwapInt32(&maxActive, m, cur) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		return http.StatusOK, nil
	})

	p := NewPoller(client, PollerConfig{Interval: 2 * time.Millisecond})
	p.Start()

	waitFor(t, func() bool { return len(rec.get()) >= 4 },
		"expected several polls to complete")
	p.Stop()

	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Fatalf("expected one poll in flight at a time, observed %d", got)
	}
}

func TestPollerSetSince(t *testing.T) {
	client, rec := newPollServer(t, func(n int, since int64) (int, []Message) {
		return http.StatusOK, nil
	})

	p := NewPoller(client, PollerConfig{Interval: 5 * time.Millisecond})
	p.SetSince(500)
	p.Start()
	defer p.Stop()

	waitFor(t, func() bool {
		s := rec.get()
		return len(s) >= 1 && s[0] == 500
	}, "expected the restored cursor on the first poll")
}

func TestNextDelay(t *testing.T) {
	p := &Poller{
		interval:         2 * time.Second,
		maxBackoff:       60 * time.Second,
		failureThreshold: 3,
	}

	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 32 * time.Second},
		{7, 60 * time.Second},
		{8, 60 * time.Second},
		{100, 60 * time.Second},
	}

	for _, tc := range cases {
		p.failures = tc.failures
		if got := p.nextDelay(); got != tc.want {
			t.Fatalf("failures=%d: expected %v, got %v", tc.failures, tc.want, got)
		}
	}
}
