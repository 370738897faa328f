package types

import "fmt"

// FieldDefinition describes one column of a Schema.
type FieldDefinition struct {
	Name   string
	Type   FieldType
	Nullable bool
	// Source annotates where the field came from (a source connection name,
	// a derived expression description, etc.) for diagnostics only.
	Source string
}

// Schema is an ordered list of field definitions plus the columns that form
// the primary key. Schemas are identified by (ID, Version); Version is part
// of each secondary-index database name (see pkg/cache/labels.go). Nothing
// bumps it when a schema is redefined: pipeline.Build gives every endpoint
// schema version 1.
type Schema struct {
	ID            string
	Version       uint32
	Fields        []FieldDefinition
	PrimaryIndex  []int // column indices forming the primary key, in order
}

// FieldIndex returns the index of a field by name, or -1 if absent.
func (s Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// HasPrimaryIndex reports whether the schema declares a primary key.
func (s Schema) HasPrimaryIndex() bool { return len(s.PrimaryIndex) > 0 }

// Validate checks that a record's shape matches the schema: field count and
// per-field type (allowing null only where the column is nullable).
func (s Schema) Validate(values []Field) error {
	if len(values) != len(s.Fields) {
		return fmt.Errorf("%w: expected %d fields, got %d", ErrSchemaMismatch, len(s.Fields), len(values))
	}
	for i, def := range s.Fields {
		v := values[i]
		if v.IsNull() {
			if !def.Nullable {
				return fmt.Errorf("%w: field %q is not nullable", ErrSchemaMismatch, def.Name)
			}
			continue
		}
		if v.Type != def.Type {
			return fmt.Errorf("%w: field %q expected type %s, got %s", ErrSchemaMismatch, def.Name, def.Type, v.Type)
		}
	}
	return nil
}

// PrimaryKeyValues extracts the primary key columns from a record's values
// in schema-declared order.
func (s Schema) PrimaryKeyValues(values []Field) []Field {
	out := make([]Field, len(s.PrimaryIndex))
	for i, idx := range s.PrimaryIndex {
		out[i] = values[idx]
	}
	return out
}
