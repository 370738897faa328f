package expr

import (
	"fmt"

	"github.com/cuemby/weir/pkg/types"
)

// ConditionalFunc tags which null-handling function a ConditionalFunction
// node computes.
type ConditionalFunc int

const (
	ConditionalCoalesce ConditionalFunc = iota
	ConditionalNullIf
)

// ConditionalFunction computes COALESCE(args...) (first non-null argument,
// or null) or NULLIF(a, b) (null if a = b, else a).
type ConditionalFunction struct {
	Fun  ConditionalFunc
	Args []Expression
}

func (c *ConditionalFunction) GetType(schema types.Schema) (ExpressionType, error) {
	switch c.Fun {
	case ConditionalCoalesce:
		if len(c.Args) == 0 {
			return ExpressionType{}, &InvalidArgumentCountError{Function: "COALESCE", Expected: "1+", Actual: 0}
		}
		first, err := c.Args[0].GetType(schema)
		if err != nil {
			return ExpressionType{}, err
		}
		nullable := true
		for _, a := range c.Args {
			at, err := a.GetType(schema)
			if err != nil {
				return ExpressionType{}, err
			}
			if !at.Nullable {
				nullable = false
			}
		}
		return ExpressionType{ReturnType: first.ReturnType, Nullable: nullable}, nil
	case ConditionalNullIf:
		if len(c.Args) != 2 {
			return ExpressionType{}, &InvalidArgumentCountError{Function: "NULLIF", Expected: "2", Actual: len(c.Args)}
		}
		first, err := c.Args[0].GetType(schema)
		if err != nil {
			return ExpressionType{}, err
		}
		return ExpressionType{ReturnType: first.ReturnType, Nullable: true}, nil
	default:
		return ExpressionType{}, fmt.Errorf("%w: conditional function %d", ErrUnknownFunction, c.Fun)
	}
}

func (c *ConditionalFunction) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	switch c.Fun {
	case ConditionalCoalesce:
		for _, a := range c.Args {
			v, err := a.Evaluate(record, schema)
			if err != nil {
				return types.Field{}, err
			}
			if !v.IsNull() {
				return v, nil
			}
		}
		return types.Field{Type: types.FieldTypeNull}, nil
	case ConditionalNullIf:
		a, err := c.Args[0].Evaluate(record, schema)
		if err != nil {
			return types.Field{}, err
		}
		b, err := c.Args[1].Evaluate(record, schema)
		if err != nil {
			return types.Field{}, err
		}
		if !a.IsNull() && !b.IsNull() {
			if cmp, err := compareFields(a, b); err == nil && cmp == 0 {
				return types.Field{Type: types.FieldTypeNull}, nil
			}
		}
		return a, nil
	default:
		return types.Field{}, fmt.Errorf("%w: conditional function %d", ErrUnknownFunction, c.Fun)
	}
}

func (c *ConditionalFunction) String() string { return fmt.Sprintf("CONDITIONAL(%d args)", len(c.Args)) }

// CaseBranch is one WHEN/THEN pair of a CaseWhen expression.
type CaseBranch struct {
	When Expression
	Then Expression
}

// CaseWhen evaluates branches in order, returning the Then of the first
// branch whose When evaluates true, or Else if none match (null if Else is
// nil).
type CaseWhen struct {
	Branches []CaseBranch
	Else     Expression
}

func (c *CaseWhen) GetType(schema types.Schema) (ExpressionType, error) {
	if len(c.Branches) == 0 {
		return ExpressionType{}, &InvalidArgumentCountError{Function: "CASE", Expected: "1+", Actual: 0}
	}
	result, err := c.Branches[0].Then.GetType(schema)
	if err != nil {
		return ExpressionType{}, err
	}
	nullable := result.Nullable
	for _, br := range c.Branches {
		wt, err := br.When.GetType(schema)
		if err != nil {
			return ExpressionType{}, err
		}
		if wt.ReturnType != types.FieldTypeBoolean {
			return ExpressionType{}, &InvalidArgumentTypeError{Function: "CASE", Expected: "boolean", Actual: wt.ReturnType}
		}
		tt, err := br.Then.GetType(schema)
		if err != nil {
			return ExpressionType{}, err
		}
		nullable = nullable || tt.Nullable
	}
	if c.Else == nil {
		nullable = true
	}
	return ExpressionType{ReturnType: result.ReturnType, Nullable: nullable}, nil
}

func (c *CaseWhen) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	for _, br := range c.Branches {
		cond, err := br.When.Evaluate(record, schema)
		if err != nil {
			return types.Field{}, err
		}
		if !cond.IsNull() && cond.BoolVal {
			return br.Then.Evaluate(record, schema)
		}
	}
	if c.Else != nil {
		return c.Else.Evaluate(record, schema)
	}
	return types.Field{Type: types.FieldTypeNull}, nil
}

func (c *CaseWhen) String() string { return fmt.Sprintf("CASE(%d branches)", len(c.Branches)) }
