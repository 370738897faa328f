package expr

import (
	"fmt"

	"github.com/cuemby/weir/pkg/types"
)

// UdfFunc is a user-registered scalar function: given already-evaluated
// argument values, return a result value (or an error).
type UdfFunc func(args []types.Field) (types.Field, error)

// Udf applies a named, externally-registered scalar function. Its return
// type is declared at registration time rather than inferred, since the Go
// function value carries no type-level signature the planner can inspect.
type Udf struct {
	Name       string
	Args       []Expression
	ReturnType types.FieldType
	Nullable   bool
	Fn         UdfFunc
}

func (u *Udf) GetType(schema types.Schema) (ExpressionType, error) {
	if u.Fn == nil {
		return ExpressionType{}, fmt.Errorf("%w: udf %q is not registered", ErrUnknownFunction, u.Name)
	}
	for _, a := range u.Args {
		if _, err := a.GetType(schema); err != nil {
			return ExpressionType{}, err
		}
	}
	return ExpressionType{ReturnType: u.ReturnType, Nullable: u.Nullable, SourceDefinition: u.Name}, nil
}

func (u *Udf) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	if u.Fn == nil {
		return types.Field{}, fmt.Errorf("%w: udf %q is not registered", ErrUnknownFunction, u.Name)
	}
	args := make([]types.Field, len(u.Args))
	for i, a := range u.Args {
		v, err := a.Evaluate(record, schema)
		if err != nil {
			return types.Field{}, err
		}
		args[i] = v
	}
	return u.Fn(args)
}

func (u *Udf) String() string { return fmt.Sprintf("%s(...)", u.Name) }
