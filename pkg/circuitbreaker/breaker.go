package circuitbreaker

import (
	"sync"
	"time"

	"github.com/speedrun-hq/shield/pkg/logger"
)

// Config holds circuit breaker settings
type Config struct {
	Enabled bool
	// Threshold is the number of failures within Window that trips the breaker
	Threshold int
	Window    time.Duration
	// ResetTimeout is how long a tripped breaker stays open
	ResetTimeout time.Duration
}

// State is a point-in-time view of the breaker
type State struct {
	Enabled      bool      `json:"enabled"`
	Open         bool      `json:"open"`
	FailureCount int       `json:"failureCount"`
	Threshold    int       `json:"threshold"`
	LastFailure  time.Time `json:"lastFailure"`
	TripTime     time.Time `json:"tripTime"`
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	cfg          Config
	failureCount int
	lastFailure  time.Time
	tripped      bool
	tripTime     time.Time
	now          func() time.Time
	logger       logger.Logger
	mu           sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg Config, log logger.Logger) *CircuitBreaker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &CircuitBreaker{
		cfg:    cfg,
		now:    time.Now,
		logger: log,
	}
}

// RecordFailure records a failure and reports whether the circuit is open afterwards
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.cfg.Enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.tripped {
		if now.Sub(cb.tripTime) <= cb.cfg.ResetTimeout {
			return true
		}
		cb.logger.Info("Circuit breaker: closing after reset timeout")
		cb.tripped = false
		cb.failureCount = 0
	}

	// Failures outside the window start a new count
	if now.Sub(cb.lastFailure) > cb.cfg.Window {
		cb.failureCount = 0
	}

	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.cfg.Threshold {
		cb.tripped = true
		cb.tripTime = now
		cb.logger.Notice("Circuit breaker tripped: %d failures in %s", cb.failureCount, cb.cfg.Window)
		return true
	}
	return false
}

// IsOpen returns true if the circuit is open (tripped)
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.cfg.Enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped && cb.now().Sub(cb.tripTime) > cb.cfg.ResetTimeout {
		cb.tripped = false
		cb.failureCount = 0
	}
	return cb.tripped
}

// Reset manually closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.tripped = false
	cb.failureCount = 0
	cb.logger.Info("Circuit breaker reset")
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	open := cb.IsOpen()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	return State{
		Enabled:      cb.cfg.Enabled,
		Open:         open,
		FailureCount: cb.failureCount,
		Threshold:    cb.cfg.Threshold,
		LastFailure:  cb.lastFailure,
		TripTime:     cb.tripTime,
	}
}
