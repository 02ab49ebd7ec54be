package resilience

import (
	"errors"
	"log"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker opens after threshold consecutive failures and lets a single
// probe through once timeout has elapsed.
type CircuitBreaker struct {
	mu            sync.Mutex
	name          string
	state         State
	failureCount  int
	lastErrorTime time.Time
	threshold     int
	timeout       time.Duration
	probing       bool
	now           func() time.Time
}

func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		state:     StateClosed,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs action unless the breaker is open. Errors wrapped with Permanent
// count as answers from a healthy peer and do not trip the breaker.
func (cb *CircuitBreaker) Execute(action func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastErrorTime) <= cb.timeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	cb.mu.Unlock()

	err := action()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false

	var perm permanentError
	if err != nil && !errors.As(err, &perm) {
		cb.failureCount++
		cb.lastErrorTime = cb.now()

		if cb.failureCount >= cb.threshold || cb.state == StateHalfOpen {
			cb.state = StateOpen
			log.Printf("⚠️ Circuit breaker %s OPEN after %d failures", cb.name, cb.failureCount)
		}
		return err
	}

	if cb.state == StateHalfOpen {
		log.Printf("✅ Circuit breaker %s recovered", cb.name)
	}
	cb.failureCount = 0
	cb.state = StateClosed

	return err
}
