package expr

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/cuemby/weir/pkg/types"
)

// BinaryOp tags the operator of a BinaryOperator node.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNotEq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
)

var binaryOpNames = map[BinaryOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpEq: "=", OpNotEq: "<>", OpLt: "<", OpLte: "<=", OpGt: ">", OpGte: ">=",
	OpAnd: "AND", OpOr: "OR",
}

func (op BinaryOp) String() string {
	if s, ok := binaryOpNames[op]; ok {
		return s
	}
	return "?"
}

func (op BinaryOp) isComparison() bool {
	switch op {
	case OpEq, OpNotEq, OpLt, OpLte, OpGt, OpGte:
		return true
	default:
		return false
	}
}

func (op BinaryOp) isLogical() bool { return op == OpAnd || op == OpOr }

// BinaryOperator applies a two-argument arithmetic, comparison or logical
// operator.
type BinaryOperator struct {
	Op    BinaryOp
	Left  Expression
	Right Expression
}

func (b *BinaryOperator) GetType(schema types.Schema) (ExpressionType, error) {
	lt, err := b.Left.GetType(schema)
	if err != nil {
		return ExpressionType{}, err
	}
	rt, err := b.Right.GetType(schema)
	if err != nil {
		return ExpressionType{}, err
	}
	nullable := lt.Nullable || rt.Nullable

	switch {
	case b.Op.isLogical():
		if lt.ReturnType != types.FieldTypeBoolean || rt.ReturnType != types.FieldTypeBoolean {
			return ExpressionType{}, &InvalidArgumentTypeError{
				Function: b.Op.String(), Expected: "boolean", Actual: lt.ReturnType,
			}
		}
		return ExpressionType{ReturnType: types.FieldTypeBoolean, Nullable: nullable}, nil

	case b.Op.isComparison():
		// timestamp - timestamp handled separately below (arithmetic path);
		// comparisons are allowed between any two like-shaped operands.
		return ExpressionType{ReturnType: types.FieldTypeBoolean, Nullable: nullable}, nil

	default: // arithmetic
		if lt.ReturnType == types.FieldTypeTimestamp && rt.ReturnType == types.FieldTypeTimestamp && b.Op == OpSub {
			return ExpressionType{ReturnType: types.FieldTypeDuration, Nullable: nullable}, nil
		}
		if lt.ReturnType == types.FieldTypeString || rt.ReturnType == types.FieldTypeString {
			return ExpressionType{}, &InvalidArgumentTypeError{
				Function: b.Op.String(), Expected: "numeric", Actual: lt.ReturnType,
			}
		}
		result, err := promoteNumericType(lt.ReturnType, rt.ReturnType)
		if err != nil {
			return ExpressionType{}, err
		}
		return ExpressionType{ReturnType: result, Nullable: nullable}, nil
	}
}

func (b *BinaryOperator) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	left, err := b.Left.Evaluate(record, schema)
	if err != nil {
		return types.Field{}, err
	}
	right, err := b.Right.Evaluate(record, schema)
	if err != nil {
		return types.Field{}, err
	}

	if b.Op.isLogical() {
		return evalLogical(b.Op, left, right)
	}
	if left.IsNull() || right.IsNull() {
		if b.Op.isComparison() {
			return types.NullField(types.FieldTypeBoolean), nil
		}
		return types.Field{Type: types.FieldTypeNull}, nil
	}
	if b.Op.isComparison() {
		return evalComparison(b.Op, left, right)
	}
	return evalArithmetic(b.Op, left, right)
}

func evalLogical(op BinaryOp, l, r types.Field) (types.Field, error) {
	// SQL three-valued logic short-circuits on the determining operand even
	// when the other side is null: FALSE AND NULL = FALSE, TRUE OR NULL = TRUE.
	switch op {
	case OpAnd:
		if (!l.IsNull() && !l.BoolVal) || (!r.IsNull() && !r.BoolVal) {
			return types.BoolField(false), nil
		}
		if l.IsNull() || r.IsNull() {
			return types.NullField(types.FieldTypeBoolean), nil
		}
		return types.BoolField(l.BoolVal && r.BoolVal), nil
	case OpOr:
		if (!l.IsNull() && l.BoolVal) || (!r.IsNull() && r.BoolVal) {
			return types.BoolField(true), nil
		}
		if l.IsNull() || r.IsNull() {
			return types.NullField(types.FieldTypeBoolean), nil
		}
		return types.BoolField(l.BoolVal || r.BoolVal), nil
	default:
		return types.Field{}, fmt.Errorf("%w: logical operator %v", ErrUnknownFunction, op)
	}
}

// Compare orders two fields using the same rules the comparison operators
// use (byte-lexicographic for strings, numeric promotion for mixed numeric
// types): -1 if l < r, 0 if equal, 1 if l > r. Exported so pkg/operator's
// MIN/MAX/ordered-set aggregators can share it.
func Compare(l, r types.Field) (int, error) { return compareFields(l, r) }

func compareFields(l, r types.Field) (int, error) {
	if l.Type == types.FieldTypeString || l.Type == types.FieldTypeText ||
		r.Type == types.FieldTypeString || r.Type == types.FieldTypeText {
		return bytes.Compare([]byte(l.StrVal), []byte(r.StrVal)), nil
	}
	if l.Type == types.FieldTypeTimestamp || l.Type == types.FieldTypeDate {
		if l.TimeVal.Before(r.TimeVal) {
			return -1, nil
		}
		if l.TimeVal.After(r.TimeVal) {
			return 1, nil
		}
		return 0, nil
	}
	if l.Type == types.FieldTypeBoolean {
		if l.BoolVal == r.BoolVal {
			return 0, nil
		}
		if !l.BoolVal {
			return -1, nil
		}
		return 1, nil
	}
	if l.Type == types.FieldTypeDecimal || r.Type == types.FieldTypeDecimal {
		scale := l.DecVal.Scale
		if r.DecVal.Scale > scale {
			scale = r.DecVal.Scale
		}
		ld := decimalFromField(l, scale)
		rd := decimalFromField(r, scale)
		return ld.Unscaled.Cmp(rd.Unscaled), nil
	}
	if l.Type == types.FieldTypeFloat || r.Type == types.FieldTypeFloat {
		lf, rf := floatFromField(l), floatFromField(r)
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return bigFromField(l).Cmp(bigFromField(r)), nil
}

func evalComparison(op BinaryOp, l, r types.Field) (types.Field, error) {
	cmp, err := compareFields(l, r)
	if err != nil {
		return types.Field{}, err
	}
	var result bool
	switch op {
	case OpEq:
		result = cmp == 0
	case OpNotEq:
		result = cmp != 0
	case OpLt:
		result = cmp < 0
	case OpLte:
		result = cmp <= 0
	case OpGt:
		result = cmp > 0
	case OpGte:
		result = cmp >= 0
	default:
		return types.Field{}, fmt.Errorf("%w: comparison operator %v", ErrUnknownFunction, op)
	}
	return types.BoolField(result), nil
}

func evalArithmetic(op BinaryOp, l, r types.Field) (types.Field, error) {
	if l.Type == types.FieldTypeTimestamp && r.Type == types.FieldTypeTimestamp && op == OpSub {
		return types.DurationField(l.TimeVal.Sub(r.TimeVal)), nil
	}

	result, err := promoteNumericType(l.Type, r.Type)
	if err != nil {
		return types.Field{}, err
	}

	switch result {
	case types.FieldTypeFloat:
		lf, rf := floatFromField(l), floatFromField(r)
		return types.FloatField(applyFloat(op, lf, rf)), nil

	case types.FieldTypeDecimal:
		scale := l.DecVal.Scale
		if r.DecVal.Scale > scale {
			scale = r.DecVal.Scale
		}
		ld := decimalFromField(l, scale)
		rd := decimalFromField(r, scale)
		return applyDecimal(op, ld, rd)

	default: // integer family
		lb, rb := bigFromField(l), bigFromField(r)
		out, err := applyBig(op, lb, rb)
		if err != nil {
			return types.Field{}, err
		}
		return fieldFromBig(out, result)
	}
}

func applyFloat(op BinaryOp, l, r float64) float64 {
	switch op {
	case OpAdd:
		return l + r
	case OpSub:
		return l - r
	case OpMul:
		return l * r
	case OpDiv:
		return l / r
	case OpMod:
		if r == 0 {
			return 0
		}
		return float64(int64(l) % int64(r))
	default:
		return 0
	}
}

func applyBig(op BinaryOp, l, r *big.Int) (*big.Int, error) {
	out := new(big.Int)
	switch op {
	case OpAdd:
		out.Add(l, r)
	case OpSub:
		out.Sub(l, r)
	case OpMul:
		out.Mul(l, r)
	case OpDiv:
		if r.Sign() == 0 {
			return nil, fmt.Errorf("%w: division by zero", ErrOverflow)
		}
		out.Quo(l, r)
	case OpMod:
		if r.Sign() == 0 {
			return nil, fmt.Errorf("%w: division by zero", ErrOverflow)
		}
		out.Rem(l, r)
	default:
		return nil, fmt.Errorf("%w: arithmetic operator %v", ErrUnknownFunction, op)
	}
	return out, nil
}

func applyDecimal(op BinaryOp, l, r types.Decimal) (types.Field, error) {
	switch op {
	case OpAdd:
		return types.DecimalField(types.Decimal{Unscaled: new(big.Int).Add(l.Unscaled, r.Unscaled), Scale: l.Scale}), nil
	case OpSub:
		return types.DecimalField(types.Decimal{Unscaled: new(big.Int).Sub(l.Unscaled, r.Unscaled), Scale: l.Scale}), nil
	case OpMul:
		out := new(big.Int).Mul(l.Unscaled, r.Unscaled)
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(l.Scale)), nil)
		out.Quo(out, factor)
		return types.DecimalField(types.Decimal{Unscaled: out, Scale: l.Scale}), nil
	case OpDiv:
		if r.Unscaled.Sign() == 0 {
			return types.Field{}, fmt.Errorf("%w: division by zero", ErrOverflow)
		}
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(l.Scale)), nil)
		numerator := new(big.Int).Mul(l.Unscaled, factor)
		out := new(big.Int).Quo(numerator, r.Unscaled)
		return types.DecimalField(types.Decimal{Unscaled: out, Scale: l.Scale}), nil
	default:
		return types.Field{}, fmt.Errorf("%w: decimal operator %v", ErrUnknownFunction, op)
	}
}

func (b *BinaryOperator) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}
