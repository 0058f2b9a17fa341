package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StateRecord is one persisted snapshot row in the local store.
type StateRecord struct {
	ID            string
	Data          []byte
	PersistedAt   time.Time
	SchemaVersion int
}

// UpsertStateRecord writes a snapshot under its fixed identifier. The write
// is an idempotent upsert: repeating it with the same payload leaves a
// single row.
func (db *DB) UpsertStateRecord(id string, data []byte, schemaVersion int) error {
	query := `
	INSERT INTO state_records (id, data, persisted_at, schema_version)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		data = excluded.data,
		persisted_at = excluded.persisted_at,
		schema_version = excluded.schema_version
	`
	_, err := db.Exec(query, id, string(data), time.Now().Unix(), schemaVersion)
	if err != nil {
		return fmt.Errorf("failed to upsert state record %s: %w", id, err)
	}
	return nil
}

// GetStateRecord reads a snapshot by its fixed identifier. Returns nil when
// no snapshot exists.
func (db *DB) GetStateRecord(id string) (*StateRecord, error) {
	var (
		data          string
		persistedAt   int64
		schemaVersion int
	)
	err := db.QueryRow(
		"SELECT data, persisted_at, schema_version FROM state_records WHERE id = ?", id,
	).Scan(&data, &persistedAt, &schemaVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state record %s: %w", id, err)
	}

	return &StateRecord{
		ID:            id,
		Data:          []byte(data),
		PersistedAt:   time.Unix(persistedAt, 0),
		SchemaVersion: schemaVersion,
	}, nil
}

// DeleteStateRecord removes a snapshot. Missing records are not an error.
func (db *DB) DeleteStateRecord(id string) error {
	_, err := db.Exec("DELETE FROM state_records WHERE id = ?", id)
	return err
}
