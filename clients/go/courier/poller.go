package courier

import (
	"context"
	"sync"
	"time"
)

// State is the poller lifecycle state.
type State int

const (
	// StateIdle means no polling loop is running.
	StateIdle State = iota
	// StatePolling means the loop is running at its normal cadence.
	StatePolling
	// StateBackoff means consecutive failures crossed the threshold
	// and the loop is running at a reduced cadence.
	StateBackoff
)

// Listener receives newly delivered messages, oldest first.
type Listener func(Message)

// PollerConfig tunes the polling loop. Zero values pick the defaults.
type PollerConfig struct {
	Interval         time.Duration // delay between polls (default 2s)
	MaxBackoff       time.Duration // backoff ceiling (default 60s)
	FailureThreshold int           // failures before backing off (default 3)
	Limit            int           // entries per poll (default 50)
}

// Poller drives delivery for one user. It keeps exactly one poll in
// flight, advances the cursor only past entries that reached the
// listeners, and discards responses to polls issued before the latest
// Stop or SwitchPartner. Messages skipped by a partner filter surface
// later through unread counts and history, never through the queue
// again: the cursor has moved on.
type Poller struct {
	client           *Client
	interval         time.Duration
	maxBackoff       time.Duration
	failureThreshold int
	limit            int

	mu        sync.Mutex
	state     State
	epoch     uint64
	partnerID string
	since     int64
	failures  int
	inFlight  bool
	listeners []Listener
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPoller creates a poller for the client's user.
func NewPoller(client *Client, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}

	return &Poller{
		client:           client,
		interval:         cfg.Interval,
		maxBackoff:       cfg.MaxBackoff,
		failureThreshold: cfg.FailureThreshold,
		limit:            cfg.Limit,
	}
}

// OnMessage registers a listener. Listeners run on the polling
// goroutine, in registration order, for each message in turn.
func (p *Poller) OnMessage(fn Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Since returns the current cursor, for persisting across restarts.
func (p *Poller) Since() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.since
}

// SetSince restores a persisted cursor. Call before Start.
func (p *Poller) SetSince(since int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.since = since
}

// Partner returns the active conversation filter, "" when unfiltered.
func (p *Poller) Partner() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.partnerID
}

// Start launches the polling loop. Starting a running poller is a
// no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return
	}
	p.epoch++
	epoch := p.epoch
	p.failures = 0
	p.state = StatePolling

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.run(ctx, epoch, done)
}

// Stop halts polling. It cancels any in-flight poll and returns only
// after the loop has exited; the canceled poll's response is dropped.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == StateIdle {
		p.mu.Unlock()
		return
	}
	p.epoch++
	p.state = StateIdle
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	cancel()
	<-done
}

// SwitchPartner changes the active conversation filter. Any response
// from a poll issued before the switch is discarded, and since the
// cursor only advances for accepted responses, those entries arrive
// again on the next poll under the new filter.
func (p *Poller) SwitchPartner(partnerID string) {
	p.mu.Lock()
	running := p.state != StateIdle
	p.mu.Unlock()

	if running {
		p.Stop()
	}

	p.mu.Lock()
	p.partnerID = partnerID
	p.mu.Unlock()

	if running {
		p.Start()
	}
}

// nextDelay picks the wait before the next poll. Cadence stays normal
// until failures reach the threshold, then doubles per failure up to
// the ceiling.
func (p *Poller) nextDelay() time.Duration {
	if p.failures < p.failureThreshold {
		return p.interval
	}
	n := p.failures - p.failureThreshold + 1
	if n > 16 {
		// Past this point the doubling has long since passed any
		// sane ceiling; larger shifts would overflow.
		n = 16
	}
	d := p.interval << uint(n)
	if d <= 0 || d > p.maxBackoff {
		d = p.maxBackoff
	}
	return d
}

func (p *Poller) run(ctx context.Context, epoch uint64, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		p.mu.Lock()
		if p.epoch != epoch {
			p.mu.Unlock()
			return
		}
		if p.inFlight {
			// A poll from a previous epoch has not unwound yet.
			p.mu.Unlock()
			timer.Reset(p.interval)
			continue
		}
		p.inFlight = true
		since := p.since
		p.mu.Unlock()

		msgs, err := p.client.PollContext(ctx, since, p.limit)

		p.mu.Lock()
		p.inFlight = false
		if p.epoch != epoch {
			// Stopped or switched while this poll was in flight. The
			// response belongs to the old view; drop it without
			// touching the cursor.
			p.mu.Unlock()
			return
		}

		var deliver []Message
		var delay time.Duration
		if err != nil {
			p.failures++
			if p.failures >= p.failureThreshold {
				p.state = StateBackoff
			}
			delay = p.nextDelay()
		} else {
			p.failures = 0
			p.state = StatePolling
			for _, m := range msgs {
				if m.Timestamp > p.since {
					p.since = m.Timestamp
				}
				if p.partnerID == "" || m.From == p.partnerID {
					deliver = append(deliver, m)
				}
			}
			delay = p.interval
		}
		listeners := append([]Listener(nil), p.listeners...)
		p.mu.Unlock()

		for _, m := range deliver {
			for _, fn := range listeners {
				fn(m)
			}
		}

		timer.Reset(delay)
	}
}
