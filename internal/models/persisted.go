package models

// Fixed identifiers and schema version for state snapshot records in the
// local embedded store.
const (
	ConnectionStateRecordID = "connection_state"
	AuthStateRecordID       = "auth_state"
	StateSchemaVersion      = 1
)

// PersistedConnectionState is the secret-stripped connection snapshot stored
// in the local embedded store. Credentials are never written.
type PersistedConnectionState struct {
	Status            string `json:"status"`
	Endpoint          string `json:"endpoint"`
	Namespace         string `json:"namespace"`
	Database          string `json:"database"`
	LastConnectedAt   int64  `json:"last_connected_at"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	HealthStatus      string `json:"health_status"`
	PersistedAt       int64  `json:"persisted_at"`
	SchemaVersion     int    `json:"schema_version"`
}

// PersistedAuthState is the non-secret authentication snapshot. Tokens are
// never written.
type PersistedAuthState struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	UserID          string `json:"user_id"`
	TenantID        string `json:"tenant_id,omitempty"`
	LastAuthCheck   int64  `json:"last_auth_check"`
	AuthExpiry      int64  `json:"auth_expiry"`
	PersistedAt     int64  `json:"persisted_at"`
	SchemaVersion   int    `json:"schema_version"`
}
