package consistency

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/MainListActivity/cuckoox-google-sub012/internal/errors"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/logging"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/observability"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/uuid"
)

// RecordStore is the replica surface transactions write through. The local
// embedded store implements it; tests substitute a map-backed fake.
type RecordStore interface {
	Get(ctx context.Context, table, id string) (models.Record, error)
	Put(ctx context.Context, table, id string, record models.Record) error
	Delete(ctx context.Context, table, id string) error
}

// BeginTransaction opens an empty ordered operation log under the given id.
func (m *Manager) BeginTransaction(id string) (*models.Transaction, error) {
	if id == "" {
		id = uuid.New()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transactions[id]; exists {
		return nil, apperrors.New(apperrors.ErrTransactionState,
			fmt.Sprintf("transaction %s already open", id))
	}

	tx := &models.Transaction{
		ID:        id,
		StartedAt: time.Now(),
	}
	m.transactions[id] = tx
	return tx, nil
}

// Transaction returns an open transaction by id.
func (m *Manager) Transaction(id string) (*models.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	return tx, ok
}

// AddTransactionOperation applies one write through the record store and
// appends it to the transaction's log. The record's prior state is captured
// first so the operation carries its own inverse; updates and deletes of a
// record that does not exist are rejected since they would have no inverse.
func (m *Manager) AddTransactionOperation(ctx context.Context, txID string, opType models.OperationType, table, recordID string, data models.Record) (*models.TransactionOperation, error) {
	m.mu.Lock()
	tx, ok := m.transactions[txID]
	m.mu.Unlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrTransactionState,
			fmt.Sprintf("no open transaction %s", txID))
	}

	prior, err := m.store.Get(ctx, table, recordID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase,
			fmt.Sprintf("failed to read prior state of %s:%s", table, recordID), err)
	}

	switch opType {
	case models.OpCreate:
		err = m.store.Put(ctx, table, recordID, data)
	case models.OpUpdate:
		if prior == nil {
			return nil, apperrors.New(apperrors.ErrInvalid,
				fmt.Sprintf("cannot update missing record %s:%s", table, recordID))
		}
		err = m.store.Put(ctx, table, recordID, data)
	case models.OpDelete:
		if prior == nil {
			return nil, apperrors.New(apperrors.ErrInvalid,
				fmt.Sprintf("cannot delete missing record %s:%s", table, recordID))
		}
		err = m.store.Delete(ctx, table, recordID)
	default:
		return nil, apperrors.New(apperrors.ErrInvalid,
			fmt.Sprintf("unknown operation type %q", opType))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase,
			fmt.Sprintf("failed to apply %s on %s:%s", opType, table, recordID), err)
	}

	op := &models.TransactionOperation{
		ID:        uuid.New(),
		Type:      opType,
		Table:     table,
		RecordID:  recordID,
		Data:      data.Clone(),
		PriorData: prior.Clone(),
		Timestamp: time.Now(),
		Status:    models.OpPending,
	}

	m.mu.Lock()
	tx.Operations = append(tx.Operations, op)
	m.mu.Unlock()
	return op, nil
}

// CommitTransaction finalizes the transaction: every applied operation is
// verified against the store, marked committed, and the log is discarded.
// A verification failure rolls the whole group back before the error is
// returned.
func (m *Manager) CommitTransaction(ctx context.Context, txID string) error {
	m.mu.Lock()
	tx, ok := m.transactions[txID]
	m.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.ErrTransactionState,
			fmt.Sprintf("no open transaction %s", txID))
	}

	for _, op := range tx.Operations {
		if err := m.verifyApplied(ctx, op); err != nil {
			logging.Warn("Commit verification failed, rolling back", map[string]interface{}{
				"transaction_id": txID,
				"operation_id":   op.ID,
				"error":          err.Error(),
			})
			if rollbackErr := m.RollbackTransaction(ctx, txID); rollbackErr != nil {
				return rollbackErr
			}
			return err
		}
	}

	m.mu.Lock()
	for _, op := range tx.Operations {
		op.Status = models.OpCommitted
	}
	delete(m.transactions, txID)
	m.mu.Unlock()

	logging.Info("Transaction committed", map[string]interface{}{
		"transaction_id": txID,
		"operations":     len(tx.Operations),
	})
	return nil
}

// verifyApplied checks the store still reflects an applied operation.
func (m *Manager) verifyApplied(ctx context.Context, op *models.TransactionOperation) error {
	current, err := m.store.Get(ctx, op.Table, op.RecordID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase,
			fmt.Sprintf("failed to verify %s:%s", op.Table, op.RecordID), err)
	}
	if op.Type == models.OpDelete {
		if current != nil {
			return apperrors.New(apperrors.ErrTransactionState,
				fmt.Sprintf("record %s:%s reappeared before commit", op.Table, op.RecordID))
		}
		return nil
	}
	if current == nil {
		return apperrors.New(apperrors.ErrTransactionState,
			fmt.Sprintf("record %s:%s vanished before commit", op.Table, op.RecordID))
	}
	return nil
}

// RollbackTransaction walks the operation log in reverse and applies each
// operation's inverse: delete the created record, restore prior data for an
// update or delete. An inverse that itself fails leaves the replica in an
// unknown state and is fatal.
func (m *Manager) RollbackTransaction(ctx context.Context, txID string) error {
	m.mu.Lock()
	tx, ok := m.transactions[txID]
	m.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.ErrTransactionState,
			fmt.Sprintf("no open transaction %s", txID))
	}

	for i := len(tx.Operations) - 1; i >= 0; i-- {
		op := tx.Operations[i]
		if op.Status == models.OpRolledBack {
			continue
		}
		if err := m.invert(ctx, op); err != nil {
			observability.TransactionRollbacks.WithLabelValues("failure").Inc()
			wrapped := apperrors.Wrap(apperrors.ErrTransactionRollback,
				fmt.Sprintf("inverse of %s on %s:%s failed, replica state unknown",
					op.Type, op.Table, op.RecordID), err)
			logging.ErrorWithCode("Transaction rollback failed",
				string(apperrors.ErrTransactionRollback), wrapped,
				map[string]interface{}{"transaction_id": txID, "operation_id": op.ID})
			return wrapped
		}
		op.Status = models.OpRolledBack
	}

	m.mu.Lock()
	delete(m.transactions, txID)
	m.mu.Unlock()

	observability.TransactionRollbacks.WithLabelValues("success").Inc()
	logging.Info("Transaction rolled back", map[string]interface{}{
		"transaction_id": txID,
		"operations":     len(tx.Operations),
	})
	return nil
}

// invert applies one operation's inverse.
func (m *Manager) invert(ctx context.Context, op *models.TransactionOperation) error {
	switch op.Type {
	case models.OpCreate:
		return m.store.Delete(ctx, op.Table, op.RecordID)
	case models.OpUpdate, models.OpDelete:
		return m.store.Put(ctx, op.Table, op.RecordID, op.PriorData)
	default:
		return apperrors.New(apperrors.ErrInvalid,
			fmt.Sprintf("unknown operation type %q", op.Type))
	}
}
