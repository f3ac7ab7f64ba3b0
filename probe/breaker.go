package probe

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute without invoking the wrapped call while the
// breaker is open.
var ErrOpen = errors.New("probe: circuit breaker open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker guards one downstream target. It opens after a threshold of
// consecutive failures and fails fast until the cooldown elapses; the next
// call after cooldown is let through as a trial whose outcome decides whether
// the breaker closes again. Breaker state is process-wide: every request
// shares the same counter, and a process restart resets it.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	trialing bool // a half-open trial call is in flight

	now func() time.Time // swapped in tests
}

func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Execute runs fn unless the breaker is open, in which case it returns
// ErrOpen immediately without invoking fn. Any error from fn (timeouts
// included) counts toward the failure threshold.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return nil
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = stateHalfOpen
		b.trialing = true
		return nil
	default: // half-open: exactly one trial call at a time
		if b.trialing {
			return ErrOpen
		}
		b.trialing = true
		return nil
	}
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateHalfOpen:
		b.trialing = false
		if ok {
			b.state = stateClosed
			b.failures = 0
		} else {
			b.state = stateOpen
			b.openedAt = b.now()
		}
	case stateOpen:
		// A call admitted before the breaker opened is settling late.
		// The breaker is already open; don't extend the cooldown.
	default:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.threshold {
			b.state = stateOpen
			b.openedAt = b.now()
		}
	}
}

// Reset forces the breaker back to closed with a clean counter. Used by the
// operator-triggered recovery endpoint.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.failures = 0
	b.trialing = false
}

// Name identifies the breaker in logs and diagnostics.
func (b *Breaker) Name() string { return b.name }

// State reports the current state as closed, open or half-open.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
