// Package consistency provides unit tests for integrity validation.
package consistency

import (
	"testing"

	apperrors "github.com/MainListActivity/cuckoox-google-sub012/internal/errors"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/events"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/uuid"
)

func creditorSchema() *models.TableSchema {
	return &models.TableSchema{
		Table:    "creditor",
		Required: []string{"name", "amount"},
		Fields: map[string]models.FieldType{
			"id":     models.FieldString,
			"name":   models.FieldString,
			"amount": models.FieldNumber,
			"active": models.FieldBoolean,
			"tags":   models.FieldArray,
		},
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	registry := NewSchemaRegistry()
	if err := registry.Register(creditorSchema()); err != nil {
		t.Fatalf("Failed to register schema: %v", err)
	}
	return NewManager(registry, newFakeRecordStore(), nil, events.NewBus())
}

func TestValidBatchPasses(t *testing.T) {
	m := newTestManager(t)

	result, err := m.ValidateDataIntegrity("creditor", []models.Record{
		{"id": uuid.New(), "name": "A Corp", "amount": 100.0, "active": true},
		{"id": uuid.New(), "name": "B Corp", "amount": 250.5, "tags": []interface{}{"vip"}},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("Expected valid batch, got errors: %+v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %+v", result.Warnings)
	}
}

func TestMissingRequiredFieldIsError(t *testing.T) {
	m := newTestManager(t)

	result, err := m.ValidateDataIntegrity("creditor", []models.Record{
		{"name": "A Corp"}, // amount absent
		{"name": nil, "amount": 5.0},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Fatal("Expected invalid batch")
	}
	if len(result.Errors) != 2 {
		t.Fatalf("Expected 2 errors, got %+v", result.Errors)
	}
	if result.Errors[0].Field != "amount" || result.Errors[0].RecordIndex != 0 {
		t.Errorf("Unexpected first error: %+v", result.Errors[0])
	}
	if result.Errors[1].Field != "name" || result.Errors[1].RecordIndex != 1 {
		t.Errorf("Unexpected second error: %+v", result.Errors[1])
	}
}

func TestTypeViolationIsError(t *testing.T) {
	m := newTestManager(t)

	result, err := m.ValidateDataIntegrity("creditor", []models.Record{
		{"name": "A Corp", "amount": "one hundred"},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Fatal("Expected invalid batch")
	}
	if len(result.Errors) != 1 || result.Errors[0].Field != "amount" {
		t.Errorf("Expected a single amount type error, got %+v", result.Errors)
	}
}

func TestMalformedIdentifierIsWarningOnly(t *testing.T) {
	m := newTestManager(t)

	result, err := m.ValidateDataIntegrity("creditor", []models.Record{
		{"id": "not-a-uuid", "name": "A Corp", "amount": 100.0},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("Warnings must not invalidate the batch: %+v", result.Errors)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Field != "id" {
		t.Errorf("Expected a single id warning, got %+v", result.Warnings)
	}
}

func TestUndeclaredTableIsRejected(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ValidateDataIntegrity("unknown_table", nil)
	if apperrors.CodeOf(err) != apperrors.ErrIntegrityValidation {
		t.Errorf("Expected INTEGRITY_VALIDATION, got %v", err)
	}
}
