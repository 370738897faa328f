package expr

import (
	"fmt"

	"github.com/cuemby/weir/pkg/types"
)

// Column references a field by position in the schema the expression is
// evaluated against.
type Column struct {
	Index int
}

func (c *Column) GetType(schema types.Schema) (ExpressionType, error) {
	if c.Index < 0 || c.Index >= len(schema.Fields) {
		return ExpressionType{}, fmt.Errorf("%w: column index %d out of range (schema has %d fields)",
			types.ErrFieldNotFound, c.Index, len(schema.Fields))
	}
	def := schema.Fields[c.Index]
	isPK := false
	for _, idx := range schema.PrimaryIndex {
		if idx == c.Index {
			isPK = true
			break
		}
	}
	return ExpressionType{
		ReturnType:       def.Type,
		Nullable:         def.Nullable,
		SourceDefinition: def.Name,
		IsPrimaryKey:     isPK,
	}, nil
}

func (c *Column) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	if c.Index < 0 || c.Index >= len(record.Values) {
		return types.Field{}, fmt.Errorf("%w: column index %d out of range", types.ErrFieldNotFound, c.Index)
	}
	return record.Values[c.Index], nil
}

func (c *Column) String() string { return fmt.Sprintf("$%d", c.Index) }

// Literal is a constant value, typed by the Field it wraps.
type Literal struct {
	Value types.Field
}

func (l *Literal) GetType(schema types.Schema) (ExpressionType, error) {
	return ExpressionType{ReturnType: l.Value.Type, Nullable: l.Value.IsNull()}, nil
}

func (l *Literal) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	return l.Value, nil
}

func (l *Literal) String() string { return l.Value.String() }
