// Package models provides data model definitions for the sync core.
package models

import "time"

// ConnectionStatus represents the lifecycle state of the remote connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusError        ConnectionStatus = "error"
)

// HealthStatus classifies the measured health of the remote transport.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// DatabaseStatus represents the state of a database instance handle.
type DatabaseStatus string

const (
	DBStatusDisconnected DatabaseStatus = "disconnected"
	DBStatusConnecting   DatabaseStatus = "connecting"
	DBStatusConnected    DatabaseStatus = "connected"
	DBStatusError        DatabaseStatus = "error"
)

// ConnectionConfig describes how to reach the remote database service.
// Immutable once accepted by Connect.
type ConnectionConfig struct {
	Endpoint  string `json:"endpoint"`
	Namespace string `json:"namespace"`
	Database  string `json:"database"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Token     string `json:"token,omitempty"`
}

// HasCredentials reports whether the config carries any authentication
// material.
func (c *ConnectionConfig) HasCredentials() bool {
	return c.Token != "" || (c.Username != "" && c.Password != "")
}

// ConnectionState holds the connection sub-state of the unified state.
type ConnectionState struct {
	Status            ConnectionStatus
	Config            *ConnectionConfig
	Endpoint          string
	LastConnectedAt   time.Time
	ReconnectAttempts int
	HealthStatus      HealthStatus
	Latency           time.Duration
	LastError         string
}

// AuthState holds the authentication sub-state.
type AuthState struct {
	IsAuthenticated bool
	UserID          string
	TenantID        string
	LastAuthCheck   time.Time
	AuthExpiry      time.Time
}

// DatabaseState holds the state of one database instance handle.
// Instance is opaque to the models package; the connection manager knows the
// concrete handle type.
type DatabaseState struct {
	Instance    interface{}
	Status      DatabaseStatus
	Initialized bool
	ErrorCount  int
	LastError   string
}

// RuntimeState holds runtime metadata of the unified state.
type RuntimeState struct {
	IsInitialized   bool
	StartedAt       time.Time
	LastStateChange time.Time
}

// UnifiedConnectionState is the single mutable record all components read
// and write through. The connection manager is its only writer; readers
// receive deep-copied snapshots.
type UnifiedConnectionState struct {
	Connection ConnectionState
	Auth       AuthState
	Remote     DatabaseState
	Local      DatabaseState
	Runtime    RuntimeState
}

// Clone returns a deep copy safe to hand to a reader. The opaque database
// instances are shared by reference; everything else is copied.
func (s *UnifiedConnectionState) Clone() *UnifiedConnectionState {
	clone := *s
	if s.Connection.Config != nil {
		cfg := *s.Connection.Config
		clone.Connection.Config = &cfg
	}
	return &clone
}
