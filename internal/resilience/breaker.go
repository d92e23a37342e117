// Package resilience provides reliability patterns for calls to external services.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the externally visible breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Breaker opens after maxFailures consecutive failures and rejects calls
// until timeout elapses. It then lets a single trial call through: success
// closes the circuit, failure reopens it.
type Breaker struct {
	name        string
	mu          sync.Mutex
	state       State
	probing     bool
	failures    int
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	now         func() time.Time
}

// NewBreaker creates a named circuit breaker. The name appears in state
// change logs.
func NewBreaker(name string, maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		name:        name,
		state:       StateClosed,
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Execute runs fn unless the circuit is open. A cancelled ctx is not
// counted as a failure of the protected service.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	switch {
	case err == nil:
		b.onSuccess()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
	default:
		b.onFailure()
	}
	return err
}

// State reports the current state without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return false
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	b.failures = 0
	b.transition(StateClosed)
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	slog.Info("circuit breaker state change", "breaker", b.name, "from", b.state, "to", to)
	b.state = to
}
