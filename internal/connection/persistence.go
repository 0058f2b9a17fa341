package connection

import (
	"encoding/json"
	"time"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/db"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/logging"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
)

// StateRecords is the slice of the local embedded store the persistence
// gateway needs.
type StateRecords interface {
	UpsertStateRecord(id string, data []byte, schemaVersion int) error
	GetStateRecord(id string) (*db.StateRecord, error)
}

// Gateway snapshots non-secret connection/auth state into the local
// embedded store and restores it after a restart of the hosting process.
type Gateway struct {
	records StateRecords
}

// NewGateway creates a persistence gateway over the given state records.
func NewGateway(records StateRecords) *Gateway {
	return &Gateway{records: records}
}

// PersistConnectionState writes a secret-stripped connection snapshot under
// its fixed record id. Credentials never reach the store.
func (g *Gateway) PersistConnectionState(state *models.UnifiedConnectionState) error {
	snapshot := models.PersistedConnectionState{
		Status:            string(state.Connection.Status),
		Endpoint:          state.Connection.Endpoint,
		LastConnectedAt:   state.Connection.LastConnectedAt.Unix(),
		ReconnectAttempts: state.Connection.ReconnectAttempts,
		HealthStatus:      string(state.Connection.HealthStatus),
		PersistedAt:       time.Now().Unix(),
		SchemaVersion:     models.StateSchemaVersion,
	}
	if cfg := state.Connection.Config; cfg != nil {
		snapshot.Endpoint = cfg.Endpoint
		snapshot.Namespace = cfg.Namespace
		snapshot.Database = cfg.Database
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return g.records.UpsertStateRecord(models.ConnectionStateRecordID, data, models.StateSchemaVersion)
}

// PersistAuthState writes the non-secret auth snapshot under its fixed
// record id.
func (g *Gateway) PersistAuthState(state *models.UnifiedConnectionState) error {
	snapshot := models.PersistedAuthState{
		IsAuthenticated: state.Auth.IsAuthenticated,
		UserID:          state.Auth.UserID,
		TenantID:        state.Auth.TenantID,
		LastAuthCheck:   state.Auth.LastAuthCheck.Unix(),
		AuthExpiry:      state.Auth.AuthExpiry.Unix(),
		PersistedAt:     time.Now().Unix(),
		SchemaVersion:   models.StateSchemaVersion,
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return g.records.UpsertStateRecord(models.AuthStateRecordID, data, models.StateSchemaVersion)
}

// RestoreConnectionState reads the persisted connection snapshot. Missing
// or malformed records yield nil rather than an error; restoration is
// always best-effort.
func (g *Gateway) RestoreConnectionState() *models.PersistedConnectionState {
	record, err := g.records.GetStateRecord(models.ConnectionStateRecordID)
	if err != nil {
		logging.Warn("Failed to read persisted connection state", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if record == nil {
		return nil
	}

	// Minimal shape check before accepting: endpoint, namespace and
	// database must be present.
	var shape map[string]interface{}
	if err := json.Unmarshal(record.Data, &shape); err != nil {
		logging.Warn("Discarding malformed connection snapshot", nil)
		return nil
	}
	for _, field := range []string{"endpoint", "namespace", "database"} {
		value, ok := shape[field].(string)
		if !ok || value == "" {
			logging.Warn("Discarding connection snapshot with missing field",
				map[string]interface{}{"field": field})
			return nil
		}
	}

	snapshot := &models.PersistedConnectionState{}
	if err := json.Unmarshal(record.Data, snapshot); err != nil {
		logging.Warn("Discarding undecodable connection snapshot", nil)
		return nil
	}
	return snapshot
}

// RestoreAuthState reads the persisted auth snapshot, validating that the
// authenticated flag is present and boolean.
func (g *Gateway) RestoreAuthState() *models.PersistedAuthState {
	record, err := g.records.GetStateRecord(models.AuthStateRecordID)
	if err != nil {
		logging.Warn("Failed to read persisted auth state", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if record == nil {
		return nil
	}

	var shape map[string]interface{}
	if err := json.Unmarshal(record.Data, &shape); err != nil {
		logging.Warn("Discarding malformed auth snapshot", nil)
		return nil
	}
	if _, ok := shape["is_authenticated"].(bool); !ok {
		logging.Warn("Discarding auth snapshot without authenticated flag", nil)
		return nil
	}

	snapshot := &models.PersistedAuthState{}
	if err := json.Unmarshal(record.Data, snapshot); err != nil {
		logging.Warn("Discarding undecodable auth snapshot", nil)
		return nil
	}
	return snapshot
}
