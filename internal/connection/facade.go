package connection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/transport"
)

// Query issues a read query against the remote service.
func (m *Manager) Query(ctx context.Context, sql string, vars map[string]interface{}) (json.RawMessage, error) {
	if err := m.requireConnected(); err != nil {
		return nil, err
	}
	return m.remote.Query(ctx, sql, vars)
}

// Mutate issues a write query against the remote service. It shares the
// query path; the split exists so callers state intent.
func (m *Manager) Mutate(ctx context.Context, sql string, vars map[string]interface{}) (json.RawMessage, error) {
	return m.Query(ctx, sql, vars)
}

// Create creates a record.
func (m *Manager) Create(ctx context.Context, thing string, data models.Record) (json.RawMessage, error) {
	if err := m.requireConnected(); err != nil {
		return nil, err
	}
	return m.remote.Create(ctx, thing, data)
}

// Select reads a record or table.
func (m *Manager) Select(ctx context.Context, thing string) (json.RawMessage, error) {
	if err := m.requireConnected(); err != nil {
		return nil, err
	}
	return m.remote.Select(ctx, thing)
}

// Update replaces a record.
func (m *Manager) Update(ctx context.Context, thing string, data models.Record) (json.RawMessage, error) {
	if err := m.requireConnected(); err != nil {
		return nil, err
	}
	return m.remote.Update(ctx, thing, data)
}

// Merge merges fields into a record.
func (m *Manager) Merge(ctx context.Context, thing string, data models.Record) (json.RawMessage, error) {
	if err := m.requireConnected(); err != nil {
		return nil, err
	}
	return m.remote.Merge(ctx, thing, data)
}

// Delete deletes a record or table.
func (m *Manager) Delete(ctx context.Context, thing string) (json.RawMessage, error) {
	if err := m.requireConnected(); err != nil {
		return nil, err
	}
	return m.remote.Delete(ctx, thing)
}

// Live opens a live query; change notifications flow to callback until the
// subscription is killed.
func (m *Manager) Live(ctx context.Context, query string, callback transport.LiveHandler, vars map[string]interface{}) (string, error) {
	if err := m.requireConnected(); err != nil {
		return "", err
	}
	return m.remote.Live(ctx, query, vars, callback)
}

// Kill terminates a live subscription.
func (m *Manager) Kill(ctx context.Context, subscriptionID string) error {
	if err := m.requireConnected(); err != nil {
		return err
	}
	return m.remote.Kill(ctx, subscriptionID)
}

// Authenticate applies a token to the remote session and records the auth
// sub-state. The refresh token is held in memory only; it is never
// persisted.
func (m *Manager) Authenticate(ctx context.Context, token, refreshToken string, expiresIn time.Duration, tenantID string) error {
	if err := m.requireConnected(); err != nil {
		return err
	}
	if err := m.remote.Authenticate(ctx, token); err != nil {
		return err
	}

	now := time.Now()
	m.store.Update(func(state *models.UnifiedConnectionState) {
		state.Auth.IsAuthenticated = true
		state.Auth.TenantID = tenantID
		state.Auth.LastAuthCheck = now
		if expiresIn > 0 {
			state.Auth.AuthExpiry = now.Add(expiresIn)
		}
	})

	return m.PersistState(ctx)
}

// Invalidate drops the remote session and clears the auth sub-state.
func (m *Manager) Invalidate(ctx context.Context) error {
	if err := m.requireConnected(); err != nil {
		return err
	}
	if err := m.remote.Invalidate(ctx); err != nil {
		return err
	}

	m.store.Update(func(state *models.UnifiedConnectionState) {
		state.Auth = models.AuthState{}
	})

	return m.PersistState(ctx)
}
