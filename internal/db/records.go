package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
)

// GetRecord reads one replica record. Returns nil when the record does not
// exist.
func (db *DB) GetRecord(table, id string) (models.Record, error) {
	var data string
	err := db.QueryRow(
		"SELECT data FROM records WHERE tbl = ? AND id = ?", table, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s:%s: %w", table, id, err)
	}

	var record models.Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("corrupt record %s:%s: %w", table, id, err)
	}
	return record, nil
}

// PutRecord creates or replaces one replica record.
func (db *DB) PutRecord(table, id string, record models.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record %s:%s: %w", table, id, err)
	}

	query := `
	INSERT INTO records (tbl, id, data, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(tbl, id) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`
	if _, err := db.Exec(query, table, id, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to write record %s:%s: %w", table, id, err)
	}
	return nil
}

// DeleteRecord removes one replica record. Missing records are not an error.
func (db *DB) DeleteRecord(table, id string) error {
	if _, err := db.Exec("DELETE FROM records WHERE tbl = ? AND id = ?", table, id); err != nil {
		return fmt.Errorf("failed to delete record %s:%s: %w", table, id, err)
	}
	return nil
}

// SelectRecords returns all records of one table keyed by record id.
func (db *DB) SelectRecords(table string) (map[string]models.Record, error) {
	rows, err := db.Query("SELECT id, data FROM records WHERE tbl = ?", table)
	if err != nil {
		return nil, fmt.Errorf("failed to select records from %s: %w", table, err)
	}
	defer rows.Close()

	result := make(map[string]models.Record)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var record models.Record
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("corrupt record %s:%s: %w", table, id, err)
		}
		result[id] = record
	}
	return result, rows.Err()
}

// AppendConflictLog journals a resolved conflict.
func (db *DB) AppendConflictLog(entry *models.ConflictLog) error {
	query := `
	INSERT INTO conflict_log (id, tbl, record_id, conflict_fields, strategy, detected_at, resolved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query, entry.ID, entry.Table, entry.RecordID,
		entry.ConflictFields, entry.Strategy, entry.DetectedAt, entry.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to append conflict log: %w", err)
	}
	return nil
}

// ListConflictLog returns journal entries for one record, newest first.
func (db *DB) ListConflictLog(table, recordID string, limit int) ([]*models.ConflictLog, error) {
	query := `
	SELECT id, tbl, record_id, conflict_fields, strategy, detected_at, resolved_at
	FROM conflict_log WHERE tbl = ? AND record_id = ?
	ORDER BY resolved_at DESC LIMIT ?
	`
	rows, err := db.Query(query, table, recordID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ConflictLog
	for rows.Next() {
		entry := &models.ConflictLog{}
		if err := rows.Scan(&entry.ID, &entry.Table, &entry.RecordID,
			&entry.ConflictFields, &entry.Strategy, &entry.DetectedAt, &entry.ResolvedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
