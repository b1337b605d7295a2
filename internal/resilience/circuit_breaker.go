package resilience

import (
	"errors"
	"sync"
	"time"
)

// State represents circuit breaker state.
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

// Errors returned by CircuitBreaker.Call.
var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CBConfig configures a CircuitBreaker.
type CBConfig struct {
	MaxFailures   int
	Timeout       time.Duration
	HalfOpenMax   int
	OnStateChange func(from, to State)
}

// DefaultCBConfig returns sensible defaults: 5 failures, 30s open, 3
// half-open probes.
func DefaultCBConfig() CBConfig {
	return CBConfig{MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMax: 3}
}

// CircuitBreaker implements the classic closed/open/half-open pattern.
type CircuitBreaker struct {
	mu             sync.Mutex
	cfg            CBConfig
	state          State
	failures       int
	halfOpenInFlight int
	openedAt       time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg CBConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Call runs fn if the breaker allows it, recording success/failure.
func (b *CircuitBreaker) Call(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *CircuitBreaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) >= b.cfg.Timeout {
			b.transition(StateHalfOpen)
			b.halfOpenInFlight = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMax {
			return ErrTooManyRequests
		}
		b.halfOpenInFlight++
		return nil
	default:
		return nil
	}
}

func (b *CircuitBreaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.MaxFailures {
			b.transition(StateOpen)
			b.openedAt = time.Now()
		}
		return
	}

	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.failures = 0
}

func (b *CircuitBreaker) transition(to State) {
	from := b.state
	b.state = to
	if to != StateHalfOpen {
		b.halfOpenInFlight = 0
	}
	if b.cfg.OnStateChange != nil && from != to {
		b.cfg.OnStateChange(from, to)
	}
}

// Current returns the current breaker state.
func (b *CircuitBreaker) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
