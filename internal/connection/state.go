// Package connection owns the connection lifecycle: the unified state
// store, the manager façade, health probing, reconnection supervision, and
// state persistence.
package connection

import (
	"sync"
	"time"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
)

// StateStore holds the unified connection state. The connection manager and
// its delegated sub-components are the only writers; every reader receives
// a deep-copied snapshot, never a mutable reference.
type StateStore struct {
	mu    sync.RWMutex
	state models.UnifiedConnectionState
}

// NewStateStore creates a store in the disconnected initial state.
func NewStateStore() *StateStore {
	now := time.Now()
	return &StateStore{
		state: models.UnifiedConnectionState{
			Connection: models.ConnectionState{
				Status:       models.StatusDisconnected,
				HealthStatus: models.HealthUnhealthy,
			},
			Remote: models.DatabaseState{Status: models.DBStatusDisconnected},
			Local:  models.DatabaseState{Status: models.DBStatusDisconnected},
			Runtime: models.RuntimeState{
				StartedAt:       now,
				LastStateChange: now,
			},
		},
	}
}

// Snapshot returns an immutable copy of the current state.
func (s *StateStore) Snapshot() *models.UnifiedConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Update applies one mutation under the write lock and stamps the state
// change time. Only the manager and its delegates may call this.
func (s *StateStore) Update(mutate func(*models.UnifiedConnectionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.state)
	s.state.Runtime.LastStateChange = time.Now()
}

// Status returns the current connection status.
func (s *StateStore) Status() models.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Connection.Status
}

// Config returns a copy of the last accepted connection config, or nil.
func (s *StateStore) Config() *models.ConnectionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Connection.Config == nil {
		return nil
	}
	cfg := *s.state.Connection.Config
	return &cfg
}
