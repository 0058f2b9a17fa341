package connection

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/MainListActivity/cuckoox-google-sub012/internal/errors"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/events"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/logging"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/observability"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/transport"
)

// RemoteDatabase is the remote service handle the manager drives. The
// concrete implementation speaks the bridge protocol; tests substitute a
// fake.
type RemoteDatabase interface {
	Open(ctx context.Context, endpoint string, onClose func(error)) error
	Use(ctx context.Context, namespace, database string) error
	SignIn(ctx context.Context, username, password string) error
	Authenticate(ctx context.Context, token string) error
	Invalidate(ctx context.Context) error
	Query(ctx context.Context, sql string, vars map[string]interface{}) (json.RawMessage, error)
	Create(ctx context.Context, thing string, data models.Record) (json.RawMessage, error)
	Select(ctx context.Context, thing string) (json.RawMessage, error)
	Update(ctx context.Context, thing string, data models.Record) (json.RawMessage, error)
	Merge(ctx context.Context, thing string, data models.Record) (json.RawMessage, error)
	Delete(ctx context.Context, thing string) (json.RawMessage, error)
	Live(ctx context.Context, query string, vars map[string]interface{}, handler transport.LiveHandler) (string, error)
	Kill(ctx context.Context, subscriptionID string) error
	Ping(ctx context.Context) (time.Duration, error)
	Close() error
}

// ManagerConfig bundles the lifecycle tunables.
type ManagerConfig struct {
	ConnectTimeout time.Duration
	Supervisor     *SupervisorConfig
	Prober         *ProberConfig
}

// DefaultManagerConfig returns production defaults.
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		ConnectTimeout: 15 * time.Second,
		Supervisor:     DefaultSupervisorConfig(),
		Prober:         DefaultProberConfig(),
	}
}

// Manager is the connection façade. It owns the unified state store, the
// persistence gateway, the health prober and the reconnection supervisor,
// and is the single writer of connection state.
type Manager struct {
	store      *StateStore
	gateway    *Gateway
	bus        *events.Bus
	remote     RemoteDatabase
	supervisor *Supervisor
	prober     *Prober

	connectTimeout time.Duration
}

// NewManager wires a manager from its collaborators.
func NewManager(config *ManagerConfig, remote RemoteDatabase, gateway *Gateway, bus *events.Bus) *Manager {
	if config == nil {
		config = DefaultManagerConfig()
	}

	m := &Manager{
		store:          NewStateStore(),
		gateway:        gateway,
		bus:            bus,
		remote:         remote,
		connectTimeout: config.ConnectTimeout,
	}

	m.supervisor = NewSupervisor(config.Supervisor, m.reconnect, m.onRetriesExhausted)
	m.prober = NewProber(config.Prober, m.store, remote.Ping, m.onProbeResult, m.onProbeFailure)

	m.store.Update(func(state *models.UnifiedConnectionState) {
		state.Runtime.IsInitialized = true
	})
	return m
}

// State returns an immutable snapshot of the unified connection state.
func (m *Manager) State() *models.UnifiedConnectionState {
	return m.store.Snapshot()
}

// Connect opens the remote handle, selects namespace/database, and
// authenticates when credentials are present. Returns true on success; on
// failure the state records the error and a CONNECTION_FAILURE (or
// AUTH_FAILURE) is returned.
func (m *Manager) Connect(ctx context.Context, config *models.ConnectionConfig) (bool, error) {
	if config == nil || config.Endpoint == "" {
		return false, apperrors.New(apperrors.ErrInvalid, "connection config requires an endpoint")
	}

	m.setStatus(models.StatusConnecting, "")
	m.store.Update(func(state *models.UnifiedConnectionState) {
		cfg := *config
		state.Connection.Config = &cfg
		state.Connection.Endpoint = config.Endpoint
		state.Remote.Status = models.DBStatusConnecting
	})

	connectCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	if err := m.establish(connectCtx, config); err != nil {
		m.recordConnectFailure(err)
		return false, err
	}

	m.store.Update(func(state *models.UnifiedConnectionState) {
		state.Connection.Status = models.StatusConnected
		state.Connection.LastConnectedAt = time.Now()
		state.Connection.ReconnectAttempts = 0
		state.Connection.HealthStatus = models.HealthHealthy
		state.Connection.LastError = ""
		state.Remote.Instance = m.remote
		state.Remote.Status = models.DBStatusConnected
		state.Remote.Initialized = true
		state.Remote.LastError = ""
	})
	m.supervisor.Reset()
	observability.SetConnectionStatus(string(models.StatusConnected))
	m.publishState()

	m.prober.Start(context.Background())

	if err := m.PersistState(ctx); err != nil {
		logging.Warn("Failed to persist state after connect", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logging.Info("Connected to remote service", map[string]interface{}{
		"endpoint": config.Endpoint,
	})
	return true, nil
}

// establish performs the individual connect steps.
func (m *Manager) establish(ctx context.Context, config *models.ConnectionConfig) error {
	if err := m.remote.Open(ctx, config.Endpoint, m.onTransportClosed); err != nil {
		return err
	}

	if config.Namespace != "" || config.Database != "" {
		if err := m.remote.Use(ctx, config.Namespace, config.Database); err != nil {
			return apperrors.Wrap(apperrors.ErrConnectionFailure, "failed to select namespace/database", err)
		}
	}

	if config.HasCredentials() {
		if config.Token != "" {
			if err := m.remote.Authenticate(ctx, config.Token); err != nil {
				return err
			}
		} else {
			if err := m.remote.SignIn(ctx, config.Username, config.Password); err != nil {
				return err
			}
		}
		m.store.Update(func(state *models.UnifiedConnectionState) {
			state.Auth.IsAuthenticated = true
			state.Auth.UserID = config.Username
			state.Auth.LastAuthCheck = time.Now()
		})
	}
	return nil
}

// recordConnectFailure moves the state machine to error and bumps the
// remote handle's error count.
func (m *Manager) recordConnectFailure(err error) {
	m.store.Update(func(state *models.UnifiedConnectionState) {
		state.Connection.Status = models.StatusError
		state.Connection.LastError = err.Error()
		state.Remote.Status = models.DBStatusError
		state.Remote.ErrorCount++
		state.Remote.LastError = err.Error()
	})
	observability.SetConnectionStatus(string(models.StatusError))
	m.publishState()

	logging.ErrorWithCode("Connect failed", string(apperrors.CodeOf(err)), err, nil)
}

// Disconnect stops the prober and supervisor, closes the remote handle and
// returns the state machine to disconnected.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.prober.Stop()
	m.supervisor.Stop()

	if err := m.remote.Close(); err != nil {
		logging.Warn("Error closing remote handle", map[string]interface{}{
			"error": err.Error(),
		})
	}

	m.store.Update(func(state *models.UnifiedConnectionState) {
		state.Connection.Status = models.StatusDisconnected
		state.Remote.Instance = nil
		state.Remote.Status = models.DBStatusDisconnected
		state.Remote.Initialized = false
	})
	observability.SetConnectionStatus(string(models.StatusDisconnected))
	m.publishState()
	return nil
}

// RestoreState merges a prior persisted snapshot into the state store and,
// when a config can be reconstructed, re-attempts connect. Reconnect
// failures here are logged and left to the supervisor, never thrown.
func (m *Manager) RestoreState(ctx context.Context) {
	connSnapshot := m.gateway.RestoreConnectionState()
	authSnapshot := m.gateway.RestoreAuthState()

	if connSnapshot == nil && authSnapshot == nil {
		logging.Info("No persisted state to restore", nil)
		return
	}

	m.store.Update(func(state *models.UnifiedConnectionState) {
		if connSnapshot != nil {
			state.Connection.Endpoint = connSnapshot.Endpoint
			state.Connection.ReconnectAttempts = connSnapshot.ReconnectAttempts
			state.Connection.HealthStatus = models.HealthStatus(connSnapshot.HealthStatus)
			state.Connection.LastConnectedAt = time.Unix(connSnapshot.LastConnectedAt, 0)
			state.Connection.Config = &models.ConnectionConfig{
				Endpoint:  connSnapshot.Endpoint,
				Namespace: connSnapshot.Namespace,
				Database:  connSnapshot.Database,
			}
		}
		if authSnapshot != nil {
			state.Auth.IsAuthenticated = authSnapshot.IsAuthenticated
			state.Auth.UserID = authSnapshot.UserID
			state.Auth.TenantID = authSnapshot.TenantID
			state.Auth.LastAuthCheck = time.Unix(authSnapshot.LastAuthCheck, 0)
			state.Auth.AuthExpiry = time.Unix(authSnapshot.AuthExpiry, 0)
		}
	})

	if connSnapshot != nil {
		if _, err := m.Connect(ctx, m.store.Config()); err != nil {
			logging.Warn("Restore-time connect failed, leaving retry to supervisor",
				map[string]interface{}{"error": err.Error()})
			m.supervisor.Trigger()
		}
	}
}

// PersistState snapshots both sub-states into the local embedded store.
func (m *Manager) PersistState(ctx context.Context) error {
	snapshot := m.store.Snapshot()
	if err := m.gateway.PersistConnectionState(snapshot); err != nil {
		return err
	}
	return m.gateway.PersistAuthState(snapshot)
}

// GracefulShutdown persists state, disconnects, and releases all timers.
func (m *Manager) GracefulShutdown(ctx context.Context) error {
	if err := m.PersistState(ctx); err != nil {
		logging.Warn("Failed to persist state during shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return m.Disconnect(ctx)
}

// Close is the external façade alias for GracefulShutdown.
func (m *Manager) Close(ctx context.Context) error {
	return m.GracefulShutdown(ctx)
}

// reconnect is the supervisor's attempt body: close the stale handle, then
// connect again with the last known config.
func (m *Manager) reconnect(ctx context.Context) error {
	config := m.store.Config()
	if config == nil {
		return apperrors.New(apperrors.ErrInvalid, "no config available for reconnection")
	}

	m.remote.Close()
	m.store.Update(func(state *models.UnifiedConnectionState) {
		state.Connection.ReconnectAttempts = m.supervisor.Attempts() + 1
	})

	_, err := m.Connect(ctx, config)
	return err
}

// onRetriesExhausted reports a terminal reconnection failure.
func (m *Manager) onRetriesExhausted(err error) {
	m.setStatus(models.StatusError, err.Error())
}

// onTransportClosed reacts to the transport dropping underneath a live
// connection.
func (m *Manager) onTransportClosed(err error) {
	if m.store.Status() != models.StatusConnected {
		return
	}

	logging.Warn("Transport closed, entering reconnection", map[string]interface{}{
		"error": err.Error(),
	})
	m.setStatus(models.StatusReconnecting, err.Error())
	m.supervisor.Trigger()
}

// onProbeResult records a successful health probe.
func (m *Manager) onProbeResult(latency time.Duration, health models.HealthStatus) {
	m.store.Update(func(state *models.UnifiedConnectionState) {
		state.Connection.Latency = latency
		state.Connection.HealthStatus = health
	})
}

// onProbeFailure treats a failed probe as a connection failure and hands
// recovery to the supervisor.
func (m *Manager) onProbeFailure(err error) {
	m.store.Update(func(state *models.UnifiedConnectionState) {
		state.Connection.Status = models.StatusError
		state.Connection.HealthStatus = models.HealthUnhealthy
		state.Connection.LastError = err.Error()
		state.Remote.ErrorCount++
	})
	observability.SetConnectionStatus(string(models.StatusError))
	m.publishState()
	m.supervisor.Trigger()
}

// setStatus transitions the connection status and publishes the change.
func (m *Manager) setStatus(status models.ConnectionStatus, errMsg string) {
	m.store.Update(func(state *models.UnifiedConnectionState) {
		state.Connection.Status = status
		if errMsg != "" {
			state.Connection.LastError = errMsg
		}
	})
	observability.SetConnectionStatus(string(status))
	m.publishState()
}

// publishState broadcasts the current connection state to observers.
func (m *Manager) publishState() {
	snapshot := m.store.Snapshot()
	m.bus.Publish(events.ConnectionStateChanged{
		Status:       snapshot.Connection.Status,
		HealthStatus: snapshot.Connection.HealthStatus,
		Attempts:     snapshot.Connection.ReconnectAttempts,
		Error:        snapshot.Connection.LastError,
	})
}

// requireConnected guards the query façade.
func (m *Manager) requireConnected() error {
	if m.store.Status() != models.StatusConnected {
		return apperrors.New(apperrors.ErrNotConnected, "not connected to remote service")
	}
	return nil
}
