package models

// Record is a JSON-decoded snapshot of a single replica record.
type Record map[string]interface{}

// Clone returns a shallow copy of the record. Nested values are shared;
// resolution strategies treat records as immutable inputs.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	clone := make(Record, len(r))
	for k, v := range r {
		clone[k] = v
	}
	return clone
}

// FieldType enumerates the primitive types a table schema can declare.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldNumber   FieldType = "number"
	FieldBoolean  FieldType = "boolean"
	FieldDatetime FieldType = "datetime"
	FieldArray    FieldType = "array"
	FieldObject   FieldType = "object"
)

// TableSchema declares the shape records of one table must conform to.
type TableSchema struct {
	Table    string               `json:"table"`
	Required []string             `json:"required"`
	Fields   map[string]FieldType `json:"fields"`
}
