package consistency

import (
	"context"

	"github.com/MainListActivity/cuckoox-google-sub012/internal/db"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
)

// LocalStore adapts the embedded replica database to the RecordStore
// interface used by transactions and conflict write-back.
type LocalStore struct {
	db *db.DB
}

// NewLocalStore wraps the embedded database.
func NewLocalStore(database *db.DB) *LocalStore {
	return &LocalStore{db: database}
}

// Get reads one record; returns nil when it does not exist.
func (s *LocalStore) Get(ctx context.Context, table, id string) (models.Record, error) {
	return s.db.GetRecord(table, id)
}

// Put creates or replaces one record.
func (s *LocalStore) Put(ctx context.Context, table, id string, record models.Record) error {
	return s.db.PutRecord(table, id, record)
}

// Delete removes one record.
func (s *LocalStore) Delete(ctx context.Context, table, id string) error {
	return s.db.DeleteRecord(table, id)
}
