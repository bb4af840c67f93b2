package payments

import (
	"errors"
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

var ErrCircuitOpen = errors.New("payment gateway circuit breaker is open")

// Breaker shields the rest of the request path from a struggling gateway.
// After maxFailures consecutive failures it fails fast until resetTimeout
// elapses, then lets a single probe call through.
type Breaker struct {
	maxFailures     int
	resetTimeout    time.Duration
	failureCount    int
	lastFailureTime time.Time
	state           breakerState
	mu              sync.Mutex
}

func NewBreaker(maxFailures int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        stateClosed,
	}
}

func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen {
		if time.Since(b.lastFailureTime) > b.resetTimeout {
			b.state = stateHalfOpen
			b.failureCount = 0
		} else {
			return ErrCircuitOpen
		}
	}

	err := fn()
	if err != nil {
		b.failureCount++
		b.lastFailureTime = time.Now()
		if b.failureCount >= b.maxFailures || b.state == stateHalfOpen {
			b.state = stateOpen
		}
		return err
	}

	b.state = stateClosed
	b.failureCount = 0
	return nil
}
