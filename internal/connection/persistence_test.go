// Package connection provides unit tests for the state persistence gateway.
package connection

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/db"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
)

// fakeStateRecords is a map-backed stand-in for the sqlite state records.
type fakeStateRecords struct {
	records map[string]*db.StateRecord
}

func newFakeStateRecords() *fakeStateRecords {
	return &fakeStateRecords{records: make(map[string]*db.StateRecord)}
}

func (f *fakeStateRecords) UpsertStateRecord(id string, data []byte, schemaVersion int) error {
	f.records[id] = &db.StateRecord{
		ID:            id,
		Data:          data,
		PersistedAt:   time.Now(),
		SchemaVersion: schemaVersion,
	}
	return nil
}

func (f *fakeStateRecords) GetStateRecord(id string) (*db.StateRecord, error) {
	return f.records[id], nil
}

func connectedState() *models.UnifiedConnectionState {
	return &models.UnifiedConnectionState{
		Connection: models.ConnectionState{
			Status: models.StatusConnected,
			Config: &models.ConnectionConfig{
				Endpoint:  "wss://db.example.com/rpc",
				Namespace: "prod",
				Database:  "main",
				Username:  "svc",
				Password:  "topsecret",
			},
			Endpoint:        "wss://db.example.com/rpc",
			LastConnectedAt: time.Now(),
			HealthStatus:    models.HealthHealthy,
		},
		Auth: models.AuthState{
			IsAuthenticated: true,
			UserID:          "user-1",
			LastAuthCheck:   time.Now(),
			AuthExpiry:      time.Now().Add(time.Hour),
		},
	}
}

func TestPersistedConnectionStateStripsCredentials(t *testing.T) {
	records := newFakeStateRecords()
	gateway := NewGateway(records)

	if err := gateway.PersistConnectionState(connectedState()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	raw := string(records.records[models.ConnectionStateRecordID].Data)
	if strings.Contains(raw, "topsecret") || strings.Contains(raw, "password") {
		t.Errorf("Persisted snapshot leaks credentials: %s", raw)
	}

	restored := gateway.RestoreConnectionState()
	if restored == nil {
		t.Fatal("Expected restored snapshot")
	}
	if restored.Endpoint != "wss://db.example.com/rpc" {
		t.Errorf("Unexpected endpoint: %s", restored.Endpoint)
	}
	if restored.Namespace != "prod" || restored.Database != "main" {
		t.Errorf("Unexpected namespace/database: %s/%s", restored.Namespace, restored.Database)
	}
	if restored.SchemaVersion != models.StateSchemaVersion {
		t.Errorf("Unexpected schema version: %d", restored.SchemaVersion)
	}
}

func TestRestoreMissingSnapshotsReturnNil(t *testing.T) {
	gateway := NewGateway(newFakeStateRecords())

	if gateway.RestoreConnectionState() != nil {
		t.Error("Expected nil for missing connection snapshot")
	}
	if gateway.RestoreAuthState() != nil {
		t.Error("Expected nil for missing auth snapshot")
	}
}

func TestRestoreRejectsMalformedConnectionSnapshot(t *testing.T) {
	records := newFakeStateRecords()
	gateway := NewGateway(records)

	cases := map[string]string{
		"not json":          `{{{`,
		"missing endpoint":  `{"namespace":"n","database":"d"}`,
		"empty endpoint":    `{"endpoint":"","namespace":"n","database":"d"}`,
		"missing namespace": `{"endpoint":"x","database":"d"}`,
	}
	for name, payload := range cases {
		records.UpsertStateRecord(models.ConnectionStateRecordID, []byte(payload), models.StateSchemaVersion)
		if got := gateway.RestoreConnectionState(); got != nil {
			t.Errorf("%s: expected nil, got %+v", name, got)
		}
	}
}

func TestRestoreRejectsAuthSnapshotWithoutFlag(t *testing.T) {
	records := newFakeStateRecords()
	gateway := NewGateway(records)

	records.UpsertStateRecord(models.AuthStateRecordID,
		[]byte(`{"user_id":"u1"}`), models.StateSchemaVersion)
	if gateway.RestoreAuthState() != nil {
		t.Error("Expected nil for auth snapshot lacking boolean flag")
	}

	records.UpsertStateRecord(models.AuthStateRecordID,
		[]byte(`{"is_authenticated":"yes"}`), models.StateSchemaVersion)
	if gateway.RestoreAuthState() != nil {
		t.Error("Expected nil for non-boolean authenticated flag")
	}
}

func TestAuthSnapshotRoundTrip(t *testing.T) {
	records := newFakeStateRecords()
	gateway := NewGateway(records)

	if err := gateway.PersistAuthState(connectedState()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	restored := gateway.RestoreAuthState()
	if restored == nil {
		t.Fatal("Expected restored auth snapshot")
	}
	if !restored.IsAuthenticated || restored.UserID != "user-1" {
		t.Errorf("Unexpected auth snapshot: %+v", restored)
	}

	// The stored payload must decode as plain JSON with the flag present.
	var shape map[string]interface{}
	if err := json.Unmarshal(records.records[models.AuthStateRecordID].Data, &shape); err != nil {
		t.Fatalf("Stored auth snapshot not JSON: %v", err)
	}
	if _, ok := shape["is_authenticated"].(bool); !ok {
		t.Error("Stored auth snapshot missing boolean flag")
	}
}
