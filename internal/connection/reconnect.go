package connection

import (
	"context"
	"sync"
	"time"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/logging"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/observability"
)

const (
	defaultBaseDelay = 100 * time.Millisecond
	defaultMaxDelay  = 5 * time.Second

	// The exponent is clamped so the schedule levels off instead of
	// overflowing on long outages.
	maxBackoffExponent = 6
)

// SupervisorConfig holds reconnection tunables.
type SupervisorConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int // 0 = unbounded
}

// DefaultSupervisorConfig returns the default backoff schedule.
func DefaultSupervisorConfig() *SupervisorConfig {
	return &SupervisorConfig{
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		MaxAttempts: 0,
	}
}

// Supervisor drives capped exponential-backoff reconnection attempts. A
// boolean guard keeps at most one reconnection in flight; a second trigger
// while one is pending is a no-op.
type Supervisor struct {
	mu           sync.Mutex
	reconnecting bool
	attempts     int
	timer        *time.Timer

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	// reconnect closes the stale handle and re-runs connect with the last
	// known config.
	reconnect func(ctx context.Context) error

	// onExhausted reports the terminal failure once MaxAttempts is reached.
	onExhausted func(err error)
}

// NewSupervisor creates a supervisor around the given reconnect operation.
func NewSupervisor(config *SupervisorConfig, reconnect func(ctx context.Context) error, onExhausted func(error)) *Supervisor {
	if config == nil {
		config = DefaultSupervisorConfig()
	}
	return &Supervisor{
		baseDelay:   config.BaseDelay,
		maxDelay:    config.MaxDelay,
		maxAttempts: config.MaxAttempts,
		reconnect:   reconnect,
		onExhausted: onExhausted,
	}
}

// Delay returns the backoff delay for the given number of prior failed
// attempts: min(base * 2^min(attempts, 6), cap).
func (s *Supervisor) Delay(attempts int) time.Duration {
	exponent := attempts
	if exponent > maxBackoffExponent {
		exponent = maxBackoffExponent
	}
	delay := s.baseDelay << uint(exponent)
	if delay > s.maxDelay {
		delay = s.maxDelay
	}
	return delay
}

// Trigger schedules a reconnection attempt. No-op while one is already in
// flight.
func (s *Supervisor) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reconnecting {
		return
	}
	s.reconnecting = true
	s.scheduleLocked()
}

// scheduleLocked arms the retry timer for the next attempt. Caller holds
// the lock.
func (s *Supervisor) scheduleLocked() {
	delay := s.Delay(s.attempts)
	logging.Info("Reconnection attempt scheduled", map[string]interface{}{
		"attempt":  s.attempts + 1,
		"delay_ms": delay.Milliseconds(),
	})
	s.timer = time.AfterFunc(delay, s.attempt)
}

// attempt runs one reconnection try.
func (s *Supervisor) attempt() {
	s.mu.Lock()
	if !s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	err := s.reconnect(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.reconnecting {
		// Cancelled while the attempt ran.
		return
	}

	if err == nil {
		observability.ReconnectAttempts.WithLabelValues("success").Inc()
		s.attempts = 0
		s.reconnecting = false
		s.timer = nil
		return
	}

	observability.ReconnectAttempts.WithLabelValues("failure").Inc()
	s.attempts++

	if s.maxAttempts > 0 && s.attempts >= s.maxAttempts {
		logging.ErrorWithCode("Reconnection attempts exhausted", "CONNECTION_FAILURE", err,
			map[string]interface{}{"attempts": s.attempts})
		s.reconnecting = false
		s.timer = nil
		if s.onExhausted != nil {
			go s.onExhausted(err)
		}
		return
	}

	s.scheduleLocked()
}

// CancelRetry clears a pending reconnection timer and the in-flight guard.
func (s *Supervisor) CancelRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.reconnecting = false
}

// Reset clears the attempt counter after an externally driven successful
// connect.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = 0
}

// Attempts returns the current failed-attempt count.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// IsReconnecting reports whether a reconnection is in flight.
func (s *Supervisor) IsReconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnecting
}

// Stop cancels any pending retry. Alias of CancelRetry kept for shutdown
// readability.
func (s *Supervisor) Stop() {
	s.CancelRetry()
}
