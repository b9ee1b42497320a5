// Package resilience guards outbound RPCs to the translation and AI services.
// A tripped breaker fails fast instead of stacking requests behind a dead
// upstream, which matters when a whole batch fans out through one client.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker refuses traffic.
var ErrOpen = errors.New("breaker open")

// State is the breaker lifecycle position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// String names the state for logs.
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Options tunes a Breaker. Zero values pick the defaults.
type Options struct {
	// Threshold is the consecutive-failure count that trips the breaker.
	Threshold int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// Probes is how many trial requests the half-open state admits.
	Probes int
	// OnStateChange observes transitions, for logging and metrics.
	OnStateChange func(name string, from, to State)
}

// Breaker is a consecutive-failure circuit breaker. Closed passes everything
// through and counts failures; Threshold consecutive failures open it. Open
// rejects with ErrOpen until Cooldown elapses, then HalfOpen admits Probes
// trial requests: all succeeding closes the breaker, any failing reopens it.
type Breaker struct {
	name string
	opts Options

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int
	openedAt  time.Time
}

// New creates a breaker.
func New(name string, opts Options) *Breaker {
	if opts.Threshold <= 0 {
		opts.Threshold = 5
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Probes <= 0 {
		opts.Probes = 1
	}
	return &Breaker{name: name, opts: opts}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, advancing open to half-open when the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tick()
}

// Do runs fn under the breaker. Rejected calls return ErrOpen without
// invoking fn; fn's own error both propagates and counts as a failure.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.settle(err == nil)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.tick() {
	case Open:
		return ErrOpen
	case HalfOpen:
		if b.inFlight >= b.opts.Probes {
			return ErrOpen
		}
	}
	b.inFlight++
	return nil
}

func (b *Breaker) settle(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight--

	switch b.state {
	case Closed:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.opts.Threshold {
			b.transition(Open)
		}
	case HalfOpen:
		if !ok {
			b.transition(Open)
			return
		}
		b.successes++
		if b.successes >= b.opts.Probes {
			b.transition(Closed)
		}
	case Open:
		// A request admitted before the trip settles here; nothing to do.
	}
}

// tick advances open to half-open after the cooldown. Callers hold b.mu.
func (b *Breaker) tick() State {
	if b.state == Open && time.Since(b.openedAt) >= b.opts.Cooldown {
		b.transition(HalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	if to == Open {
		b.openedAt = time.Now()
	}
	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(b.name, from, to)
	}
}
