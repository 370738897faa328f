package expr

import (
	"errors"
	"fmt"

	"github.com/cuemby/weir/pkg/types"
)

// Sentinel errors surfaced by GetType/Evaluate, matching spec's named error
// shapes (InvalidFunctionArgumentType, InvalidNumberOfArguments, Overflow).
var (
	ErrInvalidArgumentType  = errors.New("invalid function argument type")
	ErrInvalidArgumentCount = errors.New("invalid number of arguments")
	ErrOverflow             = errors.New("overflow")
	ErrUnknownFunction      = errors.New("unknown function")
)

// InvalidArgumentTypeError names the function and argument position that
// failed type-checking.
type InvalidArgumentTypeError struct {
	Function      string
	ArgumentIndex int
	Expected      string
	Actual        types.FieldType
}

func (e *InvalidArgumentTypeError) Error() string {
	return fmt.Sprintf("%s: argument %d of %s expected %s, got %s",
		ErrInvalidArgumentType, e.ArgumentIndex, e.Function, e.Expected, e.Actual)
}

func (e *InvalidArgumentTypeError) Unwrap() error { return ErrInvalidArgumentType }

// InvalidArgumentCountError names the function and the arity mismatch.
type InvalidArgumentCountError struct {
	Function string
	Expected string // e.g. "1", "1-2", "2+"
	Actual   int
}

func (e *InvalidArgumentCountError) Error() string {
	return fmt.Sprintf("%s: %s expected %s arguments, got %d",
		ErrInvalidArgumentCount, e.Function, e.Expected, e.Actual)
}

func (e *InvalidArgumentCountError) Unwrap() error { return ErrInvalidArgumentCount }

// ExpressionType is the result of type-checking an Expression against a
// schema: its return type, nullability, a human-readable description of
// where the value came from, and whether it is (part of) the primary key.
type ExpressionType struct {
	ReturnType       types.FieldType
	Nullable         bool
	SourceDefinition string
	IsPrimaryKey     bool
}

// Expression is one node of the typed expression tree described by the
// expression engine: Column, Literal, unary/binary operators, scalar/
// aggregate/date-time/geo/json/conditional functions, CASE WHEN, CAST, NOW
// and user-defined functions all implement it.
type Expression interface {
	// GetType type-checks the expression against schema and returns its
	// result type, without evaluating any data.
	GetType(schema types.Schema) (ExpressionType, error)
	// Evaluate computes the expression's value for record, which must
	// conform to schema.
	Evaluate(record types.Record, schema types.Schema) (types.Field, error)
	String() string
}

// IsAggregate reports whether e is (or contains, at its root) an
// AggregateFunction node. The SQL planner uses this to decide which
// sub-expressions must be hoisted into the pre-aggregation projection.
func IsAggregate(e Expression) bool {
	_, ok := e.(*AggregateFunction)
	return ok
}
