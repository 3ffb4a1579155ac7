// Package circuit implements a small circuit breaker. The announcer
// publishes through one so that an unreachable notification channel is
// skipped instead of hammered; skipped calls surface as ErrCircuitOpen.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// State represents the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call outright.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds breaker configuration.
type Config struct {
	MaxFailures int           // consecutive failures before opening
	Timeout     time.Duration // open duration before probing again
}

// Breaker trips open after MaxFailures consecutive failures and allows
// a single probe once Timeout has elapsed.
type Breaker struct {
	maxFailures int
	timeout     time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{
		maxFailures: cfg.MaxFailures,
		timeout:     cfg.Timeout,
		state:       StateClosed,
	}
}

// Execute runs fn if the breaker allows it and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := fn()
	b.record(err == nil)
	return err
}

// CurrentState reports the breaker state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) < b.timeout {
			return false
		}
		b.state = StateHalfOpen
		return true
	default:
		return true
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.state = StateClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = time.Now()
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		b.state = StateOpen
	}
}
