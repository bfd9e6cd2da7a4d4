package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling fn while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards one provider. After MaxFailures consecutive failures
// it rejects calls for OpenTimeout, then lets trial calls through.
type CircuitBreaker struct {
	name string

	mu              sync.RWMutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	lastStateChange time.Time

	maxFailures     int
	openTimeout     time.Duration
	halfOpenSuccess int

	now           func() time.Time
	onStateChange func(name string, from, to State)
}

type Config struct {
	MaxFailures     int           // Default: 5
	OpenTimeout     time.Duration // Default: 30 seconds
	HalfOpenSuccess int           // Default: 1

	// Optional. Invoked with the breaker lock held; must not call back into it.
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
}

func New(name string, cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccess <= 0 {
		cfg.HalfOpenSuccess = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &CircuitBreaker{
		name:            name,
		state:           StateClosed,
		maxFailures:     cfg.MaxFailures,
		openTimeout:     cfg.OpenTimeout,
		halfOpenSuccess: cfg.HalfOpenSuccess,
		lastStateChange: cfg.Now(),
		now:             cfg.Now,
		onStateChange:   cfg.OnStateChange,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Call runs fn unless the breaker is open. Errors for which countsAsFailure
// returns false pass through without tripping the breaker; a nil
// countsAsFailure treats every error as a failure.
func (cb *CircuitBreaker) Call(fn func() error, countsAsFailure func(error) bool) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailureTime) > cb.openTimeout {
			cb.setState(StateHalfOpen)
			cb.successCount = 0
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		if countsAsFailure == nil || countsAsFailure(err) {
			cb.onFailure()
		}
		return err
	}

	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailureTime = cb.now()

	if cb.state == StateHalfOpen {
		cb.setState(StateOpen)
		cb.successCount = 0
	} else if cb.failureCount >= cb.maxFailures {
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenSuccess {
			cb.setState(StateClosed)
			cb.failureCount = 0
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.lastStateChange = cb.now()
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, next)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forces the breaker closed, e.g. after an operator fixed a provider.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
}

func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return Metrics{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
}

type Metrics struct {
	State           State     `json:"-"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time"`
	LastStateChange time.Time `json:"last_state_change"`
}
