package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrBreakerOpen is returned without invoking the wrapped call.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerState is the current circuit state.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// Breaker is a shared circuit breaker for outbound dependencies. After
// maxFailures consecutive failures it opens for resetTimeout, then admits a
// single probe call in half-open state.
type Breaker struct {
	name        string
	maxFailures int
	resetAfter  time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, maxFailures int, resetAfter time.Duration, logger zerolog.Logger) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetAfter <= 0 {
		resetAfter = 30 * time.Second
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		resetAfter:  resetAfter,
		logger:      logger.With().Str("breaker", name).Logger(),
		state:       StateClosed,
		now:         time.Now,
	}
}

// Execute runs fn under the breaker's failure accounting.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

// State returns the current state, applying the open->half-open transition.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	switch b.state {
	case StateOpen:
		return ErrBreakerOpen
	case StateHalfOpen:
		// one probe at a time; concurrent callers fail fast until it settles
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if success {
		if b.state != StateClosed {
			b.logger.Info().Msg("circuit closed")
		}
		b.state = StateClosed
		b.failures = 0
		return
	}
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		if b.state != StateOpen {
			b.logger.Warn().Int("failures", b.failures).Msg("circuit opened")
		}
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetAfter {
		b.state = StateHalfOpen
		b.logger.Info().Msg("circuit half-open")
	}
}
