// Package consistency validates record shape, detects and resolves
// divergence between the local and remote replicas of a record, and executes
// grouped multi-record transactions with rollback.
package consistency

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	apperrors "github.com/MainListActivity/cuckoox-google-sub012/internal/errors"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
)

// SchemaRegistry holds the declared table schemas and their compiled JSON
// Schema form used by integrity validation.
type SchemaRegistry struct {
	mu       sync.RWMutex
	declared map[string]*models.TableSchema
	compiled map[string]*jsonschema.Schema
}

// NewSchemaRegistry creates an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		declared: make(map[string]*models.TableSchema),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register declares a table schema, replacing any prior declaration for the
// same table.
func (r *SchemaRegistry) Register(schema *models.TableSchema) error {
	if schema == nil || schema.Table == "" {
		return apperrors.New(apperrors.ErrInvalid, "table schema requires a table name")
	}

	compiled, err := compileSchema(schema)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid,
			fmt.Sprintf("failed to compile schema for table %s", schema.Table), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.declared[schema.Table] = schema
	r.compiled[schema.Table] = compiled
	return nil
}

// Lookup returns the declared and compiled schemas for a table.
func (r *SchemaRegistry) Lookup(table string) (*models.TableSchema, *jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	declared, ok := r.declared[table]
	if !ok {
		return nil, nil, false
	}
	return declared, r.compiled[table], true
}

// Tables returns the names of all declared tables.
func (r *SchemaRegistry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tables := make([]string, 0, len(r.declared))
	for table := range r.declared {
		tables = append(tables, table)
	}
	return tables
}

// compileSchema lowers a table schema into a compiled JSON Schema. Required
// fields are checked separately so their absence can be reported as
// "missing" rather than a generic schema violation.
func compileSchema(schema *models.TableSchema) (*jsonschema.Schema, error) {
	properties := make(map[string]interface{}, len(schema.Fields))
	for field, fieldType := range schema.Fields {
		properties[field] = typeClause(fieldType)
	}
	document := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat()
	url := fmt.Sprintf("%s.json", schema.Table)
	if err := compiler.AddResource(url, document); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// typeClause maps a declared field type to its JSON Schema clause.
func typeClause(fieldType models.FieldType) map[string]interface{} {
	switch fieldType {
	case models.FieldString:
		return map[string]interface{}{"type": "string"}
	case models.FieldNumber:
		return map[string]interface{}{"type": "number"}
	case models.FieldBoolean:
		return map[string]interface{}{"type": "boolean"}
	case models.FieldDatetime:
		return map[string]interface{}{"type": "string", "format": "date-time"}
	case models.FieldArray:
		return map[string]interface{}{"type": "array"}
	case models.FieldObject:
		return map[string]interface{}{"type": "object"}
	default:
		// Unknown declarations accept anything rather than rejecting
		// records the declaration never constrained.
		return map[string]interface{}{}
	}
}
