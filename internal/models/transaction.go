package models

import "time"

// OperationType enumerates the write operations a transaction can group.
type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

// OperationStatus tracks one operation through commit and rollback.
type OperationStatus string

const (
	OpPending    OperationStatus = "pending"
	OpCommitted  OperationStatus = "committed"
	OpRolledBack OperationStatus = "rolled_back"
)

// TransactionOperation is one entry in a transaction's ordered log.
// PriorData carries the inverse: the record as it was before the operation,
// required for rollback of updates and deletes.
type TransactionOperation struct {
	ID        string          `json:"id"`
	Type      OperationType   `json:"type"`
	Table     string          `json:"table"`
	RecordID  string          `json:"record_id"`
	Data      Record          `json:"data,omitempty"`
	PriorData Record          `json:"prior_data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Status    OperationStatus `json:"status"`
}

// Transaction is an ordered sequence of operations committed or rolled back
// as a group. Rollback walks Operations in reverse.
type Transaction struct {
	ID         string                  `json:"id"`
	Operations []*TransactionOperation `json:"operations"`
	StartedAt  time.Time               `json:"started_at"`
}
