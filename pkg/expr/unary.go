package expr

import (
	"fmt"
	"math/big"

	"github.com/cuemby/weir/pkg/types"
)

// UnaryOp tags the operator of a UnaryOperator node.
type UnaryOp int

const (
	UnaryNot UnaryOp = iota
	UnaryNegate
)

func (op UnaryOp) String() string {
	switch op {
	case UnaryNot:
		return "NOT"
	case UnaryNegate:
		return "-"
	default:
		return "?"
	}
}

// UnaryOperator applies a single-argument operator: logical NOT or
// arithmetic negation.
type UnaryOperator struct {
	Op  UnaryOp
	Arg Expression
}

func (u *UnaryOperator) GetType(schema types.Schema) (ExpressionType, error) {
	argType, err := u.Arg.GetType(schema)
	if err != nil {
		return ExpressionType{}, err
	}
	switch u.Op {
	case UnaryNot:
		if argType.ReturnType != types.FieldTypeBoolean {
			return ExpressionType{}, &InvalidArgumentTypeError{
				Function: "NOT", ArgumentIndex: 0, Expected: "boolean", Actual: argType.ReturnType,
			}
		}
		return ExpressionType{ReturnType: types.FieldTypeBoolean, Nullable: argType.Nullable}, nil
	case UnaryNegate:
		if !isNumeric(argType.ReturnType) {
			return ExpressionType{}, &InvalidArgumentTypeError{
				Function: "-", ArgumentIndex: 0, Expected: "numeric", Actual: argType.ReturnType,
			}
		}
		return ExpressionType{ReturnType: argType.ReturnType, Nullable: argType.Nullable}, nil
	default:
		return ExpressionType{}, fmt.Errorf("%w: unary operator %v", ErrUnknownFunction, u.Op)
	}
}

func (u *UnaryOperator) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	v, err := u.Arg.Evaluate(record, schema)
	if err != nil {
		return types.Field{}, err
	}
	if v.IsNull() {
		return v, nil
	}
	switch u.Op {
	case UnaryNot:
		return types.BoolField(!v.BoolVal), nil
	case UnaryNegate:
		switch v.Type {
		case types.FieldTypeInt:
			return types.IntField(-v.IntVal), nil
		case types.FieldTypeUInt:
			// negating an unsigned value promotes it to signed.
			return types.IntField(-int64(v.UIntVal)), nil
		case types.FieldTypeFloat:
			return types.FloatField(-v.FloatVal), nil
		case types.FieldTypeDecimal:
			return types.DecimalField(types.Decimal{
				Unscaled: new(big.Int).Neg(v.DecVal.Unscaled), Scale: v.DecVal.Scale,
			}), nil
		case types.FieldTypeInt128, types.FieldTypeUInt128:
			return types.Int128Field(new(big.Int).Neg(bigFromField(v))), nil
		default:
			return types.Field{}, &InvalidArgumentTypeError{Function: "-", Expected: "numeric", Actual: v.Type}
		}
	default:
		return types.Field{}, fmt.Errorf("%w: unary operator %v", ErrUnknownFunction, u.Op)
	}
}

func (u *UnaryOperator) String() string { return fmt.Sprintf("%s(%s)", u.Op, u.Arg) }
