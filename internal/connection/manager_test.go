// Package connection provides unit tests for the connection lifecycle
// manager.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/MainListActivity/cuckoox-google-sub012/internal/errors"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/events"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/transport"
)

// fakeRemote is an in-memory RemoteDatabase. Per-method error hooks let
// tests fail individual connect steps.
type fakeRemote struct {
	mu sync.Mutex

	openErr   error
	useErr    error
	signInErr error
	authErr   error
	pingErr   error

	openCalls   atomic.Int32
	closeCalls  atomic.Int32
	signIns     atomic.Int32
	authCalls   atomic.Int32
	lastUse     [2]string
	onClose     func(error)
	pingLatency time.Duration
}

func (f *fakeRemote) Open(ctx context.Context, endpoint string, onClose func(error)) error {
	f.openCalls.Add(1)
	f.mu.Lock()
	err := f.openErr
	if err == nil {
		f.onClose = onClose
	}
	f.mu.Unlock()
	return err
}

func (f *fakeRemote) Use(ctx context.Context, namespace, database string) error {
	f.mu.Lock()
	f.lastUse = [2]string{namespace, database}
	err := f.useErr
	f.mu.Unlock()
	return err
}

func (f *fakeRemote) SignIn(ctx context.Context, username, password string) error {
	f.signIns.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signInErr
}

func (f *fakeRemote) Authenticate(ctx context.Context, token string) error {
	f.authCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authErr
}

func (f *fakeRemote) Invalidate(ctx context.Context) error { return nil }

func (f *fakeRemote) Query(ctx context.Context, sql string, vars map[string]interface{}) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (f *fakeRemote) Create(ctx context.Context, thing string, data models.Record) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakeRemote) Select(ctx context.Context, thing string) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (f *fakeRemote) Update(ctx context.Context, thing string, data models.Record) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakeRemote) Merge(ctx context.Context, thing string, data models.Record) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakeRemote) Delete(ctx context.Context, thing string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakeRemote) Live(ctx context.Context, query string, vars map[string]interface{}, handler transport.LiveHandler) (string, error) {
	return "sub-1", nil
}

func (f *fakeRemote) Kill(ctx context.Context, subscriptionID string) error { return nil }

func (f *fakeRemote) Ping(ctx context.Context) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pingErr != nil {
		return 0, f.pingErr
	}
	return f.pingLatency, nil
}

func (f *fakeRemote) Close() error {
	f.closeCalls.Add(1)
	return nil
}

// dropTransport simulates the server closing the connection underneath us.
func (f *fakeRemote) dropTransport(err error) {
	f.mu.Lock()
	onClose := f.onClose
	f.mu.Unlock()
	if onClose != nil {
		onClose(err)
	}
}

func testManager(t *testing.T, remote *fakeRemote) *Manager {
	t.Helper()
	config := &ManagerConfig{
		ConnectTimeout: time.Second,
		Supervisor: &SupervisorConfig{
			BaseDelay: time.Millisecond,
			MaxDelay:  2 * time.Millisecond,
		},
		Prober: DefaultProberConfig(),
	}
	m := NewManager(config, remote, NewGateway(newFakeStateRecords()), events.NewBus())
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}

func basicConfig() *models.ConnectionConfig {
	return &models.ConnectionConfig{
		Endpoint:  "wss://db.example.com/rpc",
		Namespace: "prod",
		Database:  "main",
	}
}

func TestConnectSucceeds(t *testing.T) {
	remote := &fakeRemote{pingLatency: time.Millisecond}
	m := testManager(t, remote)

	ok, err := m.Connect(context.Background(), basicConfig())
	if err != nil || !ok {
		t.Fatalf("Connect = (%v, %v), want (true, nil)", ok, err)
	}

	state := m.State()
	if state.Connection.Status != models.StatusConnected {
		t.Errorf("Expected connected status, got %s", state.Connection.Status)
	}
	if !state.Remote.Initialized || state.Remote.Instance == nil {
		t.Error("Expected remote handle initialized")
	}
	if remote.lastUse != [2]string{"prod", "main"} {
		t.Errorf("Unexpected namespace/database selection: %v", remote.lastUse)
	}
	if remote.signIns.Load() != 0 {
		t.Error("Expected no sign-in without credentials")
	}
}

func TestConnectWithCredentialsSignsIn(t *testing.T) {
	remote := &fakeRemote{}
	m := testManager(t, remote)

	config := basicConfig()
	config.Username = "svc"
	config.Password = "hunter2"
	if _, err := m.Connect(context.Background(), config); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if remote.signIns.Load() != 1 {
		t.Errorf("Expected 1 sign-in, got %d", remote.signIns.Load())
	}
	if !m.State().Auth.IsAuthenticated {
		t.Error("Expected authenticated auth sub-state")
	}
}

func TestConnectWithTokenUsesAuthenticate(t *testing.T) {
	remote := &fakeRemote{}
	m := testManager(t, remote)

	config := basicConfig()
	config.Token = "jwt-token"
	if _, err := m.Connect(context.Background(), config); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if remote.authCalls.Load() != 1 || remote.signIns.Load() != 0 {
		t.Errorf("Expected token auth only, got auth=%d signIn=%d",
			remote.authCalls.Load(), remote.signIns.Load())
	}
}

func TestConnectFailureRecordsError(t *testing.T) {
	remote := &fakeRemote{openErr: apperrors.New(apperrors.ErrConnectionFailure, "refused")}
	m := testManager(t, remote)

	ok, err := m.Connect(context.Background(), basicConfig())
	if ok || err == nil {
		t.Fatal("Expected connect failure")
	}
	if apperrors.CodeOf(err) != apperrors.ErrConnectionFailure {
		t.Errorf("Unexpected error code: %s", apperrors.CodeOf(err))
	}

	state := m.State()
	if state.Connection.Status != models.StatusError {
		t.Errorf("Expected error status, got %s", state.Connection.Status)
	}
	if state.Remote.ErrorCount != 1 {
		t.Errorf("Expected 1 remote error, got %d", state.Remote.ErrorCount)
	}
	if !strings.Contains(state.Connection.LastError, "refused") {
		t.Errorf("Expected failure reason in state, got %q", state.Connection.LastError)
	}
}

func TestConnectRejectsEmptyConfig(t *testing.T) {
	m := testManager(t, &fakeRemote{})

	if _, err := m.Connect(context.Background(), nil); err == nil {
		t.Error("Expected error for nil config")
	}
	if _, err := m.Connect(context.Background(), &models.ConnectionConfig{}); err == nil {
		t.Error("Expected error for empty endpoint")
	}
}

func TestConnectThenDisconnectLeavesCleanState(t *testing.T) {
	remote := &fakeRemote{}
	m := testManager(t, remote)

	if _, err := m.Connect(context.Background(), basicConfig()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	state := m.State()
	if state.Connection.Status != models.StatusDisconnected {
		t.Errorf("Expected disconnected status, got %s", state.Connection.Status)
	}
	if state.Remote.Instance != nil || state.Remote.Initialized {
		t.Error("Expected remote handle released")
	}
	if m.prober.IsRunning() {
		t.Error("Expected no pending health-probe timer after disconnect")
	}
	if m.supervisor.IsReconnecting() {
		t.Error("Expected no pending reconnection after disconnect")
	}
}

func TestTransportCloseTriggersReconnection(t *testing.T) {
	remote := &fakeRemote{}
	m := testManager(t, remote)

	if _, err := m.Connect(context.Background(), basicConfig()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	remote.dropTransport(errors.New("connection reset"))

	// The supervisor retries with millisecond backoff, so the manager
	// should land back in connected with a reset attempt counter.
	waitFor(t, func() bool {
		return m.State().Connection.Status == models.StatusConnected && remote.openCalls.Load() >= 2
	})
	if got := m.State().Connection.ReconnectAttempts; got != 0 {
		t.Errorf("Expected attempt counter reset after recovery, got %d", got)
	}
}

func TestTransportCloseIgnoredWhileDisconnected(t *testing.T) {
	remote := &fakeRemote{}
	m := testManager(t, remote)

	if _, err := m.Connect(context.Background(), basicConfig()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	remote.dropTransport(errors.New("late close"))

	time.Sleep(10 * time.Millisecond)
	if m.State().Connection.Status != models.StatusDisconnected {
		t.Error("Expected late transport close to be ignored after disconnect")
	}
}

func TestQueryRequiresConnection(t *testing.T) {
	m := testManager(t, &fakeRemote{})

	_, err := m.Query(context.Background(), "SELECT * FROM user", nil)
	if apperrors.CodeOf(err) != apperrors.ErrNotConnected {
		t.Errorf("Expected NOT_CONNECTED, got %v", err)
	}
}

func TestRestoreStateReconnectsFromSnapshot(t *testing.T) {
	records := newFakeStateRecords()
	gateway := NewGateway(records)

	// Seed the store through a first manager session.
	remote := &fakeRemote{}
	config := &ManagerConfig{
		ConnectTimeout: time.Second,
		Supervisor:     &SupervisorConfig{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Prober:         DefaultProberConfig(),
	}
	first := NewManager(config, remote, gateway, events.NewBus())
	if _, err := first.Connect(context.Background(), basicConfig()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := first.GracefulShutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// A fresh manager restores the snapshot and reconnects.
	second := NewManager(config, remote, gateway, events.NewBus())
	defer second.Close(context.Background())
	second.RestoreState(context.Background())

	state := second.State()
	if state.Connection.Status != models.StatusConnected {
		t.Errorf("Expected reconnect from restored snapshot, got %s", state.Connection.Status)
	}
	if cfg := state.Connection.Config; cfg == nil ||
		cfg.Endpoint != "wss://db.example.com/rpc" || cfg.Namespace != "prod" {
		t.Errorf("Unexpected restored config: %+v", state.Connection.Config)
	}
	// Credentials never survive a restore.
	if cfg := state.Connection.Config; cfg.Username != "" || cfg.Password != "" || cfg.Token != "" {
		t.Error("Restored config must not carry credentials")
	}
}

func TestRestoreStateWithNothingPersistedIsNoop(t *testing.T) {
	m := testManager(t, &fakeRemote{})
	m.RestoreState(context.Background())

	if m.State().Connection.Status != models.StatusDisconnected {
		t.Error("Expected restore with no snapshot to leave state untouched")
	}
}

func TestAuthenticateRecordsExpiryAndInvalidateClears(t *testing.T) {
	m := testManager(t, &fakeRemote{})
	if _, err := m.Connect(context.Background(), basicConfig()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := m.Authenticate(context.Background(), "jwt", "refresh", time.Hour, "tenant-1"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	auth := m.State().Auth
	if !auth.IsAuthenticated || auth.TenantID != "tenant-1" {
		t.Errorf("Unexpected auth state: %+v", auth)
	}
	if auth.AuthExpiry.Before(time.Now().Add(50 * time.Minute)) {
		t.Error("Expected expiry roughly an hour out")
	}

	if err := m.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if m.State().Auth.IsAuthenticated {
		t.Error("Expected auth state cleared after invalidate")
	}
}
