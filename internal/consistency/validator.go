package consistency

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	apperrors "github.com/MainListActivity/cuckoox-google-sub012/internal/errors"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/logging"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/uuid"
)

// Issue describes one validation finding for one record of a batch.
type Issue struct {
	RecordIndex int    `json:"record_index"`
	Field       string `json:"field"`
	Message     string `json:"message"`
}

// ValidationResult separates batch-rejecting errors from advisory warnings.
type ValidationResult struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// ValidateDataIntegrity checks a batch of records against the declared
// schema of a table. Missing required fields and type violations are errors
// and make the whole batch invalid; a malformed identifier is a warning
// only. No write happens here; callers reject the batch on Valid == false.
func (m *Manager) ValidateDataIntegrity(table string, records []models.Record) (*ValidationResult, error) {
	declared, compiled, ok := m.schemas.Lookup(table)
	if !ok {
		return nil, apperrors.New(apperrors.ErrIntegrityValidation,
			fmt.Sprintf("no schema declared for table %s", table))
	}

	result := &ValidationResult{Valid: true}
	for index, record := range records {
		missing := make(map[string]struct{})
		for _, field := range declared.Required {
			if value, present := record[field]; !present || value == nil {
				missing[field] = struct{}{}
				result.Errors = append(result.Errors, Issue{
					RecordIndex: index,
					Field:       field,
					Message:     "missing required field",
				})
			}
		}

		if err := compiled.Validate(map[string]interface{}(record)); err != nil {
			for _, field := range violatedFields(err) {
				if _, alreadyMissing := missing[field]; alreadyMissing {
					continue
				}
				result.Errors = append(result.Errors, Issue{
					RecordIndex: index,
					Field:       field,
					Message:     "value does not conform to declared type",
				})
			}
		}

		if id, isString := record["id"].(string); isString && !uuid.IsValid(id) {
			result.Warnings = append(result.Warnings, Issue{
				RecordIndex: index,
				Field:       "id",
				Message:     fmt.Sprintf("identifier %q is not a valid UUID v4", id),
			})
		}
	}

	result.Valid = len(result.Errors) == 0
	if !result.Valid {
		logging.Warn("Integrity validation rejected batch", map[string]interface{}{
			"table":    table,
			"records":  len(records),
			"errors":   len(result.Errors),
			"warnings": len(result.Warnings),
		})
	}
	return result, nil
}

// violatedFields extracts the top-level field names named by leaf validation
// causes. Root-level causes carry no instance location and are skipped;
// required-field absence is reported separately.
func violatedFields(err error) []string {
	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	var fields []string
	var walk func(cause *jsonschema.ValidationError)
	walk = func(cause *jsonschema.ValidationError) {
		if len(cause.Causes) == 0 {
			if len(cause.InstanceLocation) > 0 {
				field := cause.InstanceLocation[0]
				if _, dup := seen[field]; !dup {
					seen[field] = struct{}{}
					fields = append(fields, field)
				}
			}
			return
		}
		for _, child := range cause.Causes {
			walk(child)
		}
	}
	walk(validationErr)
	return fields
}
