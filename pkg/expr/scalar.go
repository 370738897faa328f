package expr

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/cuemby/weir/pkg/types"
)

// ScalarFunc tags which scalar function a ScalarFunction node computes.
type ScalarFunc int

const (
	ScalarAbs ScalarFunc = iota
	ScalarRound
	ScalarUcase
	ScalarConcat
	ScalarLength
)

var scalarFuncNames = map[ScalarFunc]string{
	ScalarAbs: "ABS", ScalarRound: "ROUND", ScalarUcase: "UCASE",
	ScalarConcat: "CONCAT", ScalarLength: "LENGTH",
}

func (f ScalarFunc) String() string {
	if s, ok := scalarFuncNames[f]; ok {
		return s
	}
	return "?"
}

// ScalarFunction applies a named scalar function to its arguments.
type ScalarFunction struct {
	Fun  ScalarFunc
	Args []Expression
}

func (s *ScalarFunction) arg(i int) (Expression, error) {
	if i >= len(s.Args) {
		return nil, &InvalidArgumentCountError{Function: s.Fun.String(), Expected: fmt.Sprintf(">%d", i), Actual: len(s.Args)}
	}
	return s.Args[i], nil
}

func (s *ScalarFunction) GetType(schema types.Schema) (ExpressionType, error) {
	switch s.Fun {
	case ScalarAbs:
		a, err := s.arg(0)
		if err != nil {
			return ExpressionType{}, err
		}
		at, err := a.GetType(schema)
		if err != nil {
			return ExpressionType{}, err
		}
		if !isNumeric(at.ReturnType) {
			return ExpressionType{}, &InvalidArgumentTypeError{Function: "ABS", Expected: "numeric", Actual: at.ReturnType}
		}
		return at, nil

	case ScalarRound:
		if len(s.Args) < 1 || len(s.Args) > 2 {
			return ExpressionType{}, &InvalidArgumentCountError{Function: "ROUND", Expected: "1-2", Actual: len(s.Args)}
		}
		return ExpressionType{ReturnType: types.FieldTypeInt, Nullable: true}, nil

	case ScalarUcase:
		a, err := s.arg(0)
		if err != nil {
			return ExpressionType{}, err
		}
		at, err := a.GetType(schema)
		if err != nil {
			return ExpressionType{}, err
		}
		if at.ReturnType != types.FieldTypeString && at.ReturnType != types.FieldTypeText {
			return ExpressionType{}, &InvalidArgumentTypeError{Function: "UCASE", Expected: "string", Actual: at.ReturnType}
		}
		return at, nil

	case ScalarConcat:
		if len(s.Args) < 2 {
			return ExpressionType{}, &InvalidArgumentCountError{Function: "CONCAT", Expected: "2+", Actual: len(s.Args)}
		}
		nullable := false
		for i, a := range s.Args {
			at, err := a.GetType(schema)
			if err != nil {
				return ExpressionType{}, err
			}
			if at.ReturnType != types.FieldTypeString && at.ReturnType != types.FieldTypeText {
				return ExpressionType{}, &InvalidArgumentTypeError{Function: "CONCAT", ArgumentIndex: i, Expected: "string", Actual: at.ReturnType}
			}
			nullable = nullable || at.Nullable
		}
		return ExpressionType{ReturnType: types.FieldTypeString, Nullable: nullable}, nil

	case ScalarLength:
		if _, err := s.arg(0); err != nil {
			return ExpressionType{}, err
		}
		return ExpressionType{ReturnType: types.FieldTypeUInt, Nullable: false}, nil

	default:
		return ExpressionType{}, fmt.Errorf("%w: scalar function %v", ErrUnknownFunction, s.Fun)
	}
}

func (s *ScalarFunction) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	switch s.Fun {
	case ScalarAbs:
		v, err := s.Args[0].Evaluate(record, schema)
		if err != nil {
			return types.Field{}, err
		}
		return evaluateAbs(v)

	case ScalarRound:
		v, err := s.Args[0].Evaluate(record, schema)
		if err != nil {
			return types.Field{}, err
		}
		precision := int64(0)
		if len(s.Args) == 2 {
			p, err := s.Args[1].Evaluate(record, schema)
			if err != nil {
				return types.Field{}, err
			}
			precision = p.IntVal
		}
		return evaluateRound(v, precision)

	case ScalarUcase:
		v, err := s.Args[0].Evaluate(record, schema)
		if err != nil {
			return types.Field{}, err
		}
		if v.IsNull() {
			return v, nil
		}
		return types.StringField(strings.ToUpper(v.StrVal)), nil

	case ScalarConcat:
		var sb strings.Builder
		for _, a := range s.Args {
			v, err := a.Evaluate(record, schema)
			if err != nil {
				return types.Field{}, err
			}
			if v.IsNull() {
				return types.NullField(types.FieldTypeString), nil
			}
			sb.WriteString(v.StrVal)
		}
		return types.StringField(sb.String()), nil

	case ScalarLength:
		v, err := s.Args[0].Evaluate(record, schema)
		if err != nil {
			return types.Field{}, err
		}
		if v.IsNull() {
			return types.NullField(types.FieldTypeUInt), nil
		}
		return types.UIntField(uint64(len(v.StrVal))), nil

	default:
		return types.Field{}, fmt.Errorf("%w: scalar function %v", ErrUnknownFunction, s.Fun)
	}
}

func evaluateAbs(v types.Field) (types.Field, error) {
	if v.IsNull() {
		return v, nil
	}
	switch v.Type {
	case types.FieldTypeInt:
		n := v.IntVal
		if n < 0 {
			n = -n
		}
		return types.IntField(n), nil
	case types.FieldTypeUInt:
		return v, nil
	case types.FieldTypeFloat:
		return types.FloatField(math.Abs(v.FloatVal)), nil
	case types.FieldTypeDecimal:
		return types.DecimalField(types.Decimal{Unscaled: new(big.Int).Abs(v.DecVal.Unscaled), Scale: v.DecVal.Scale}), nil
	case types.FieldTypeInt128, types.FieldTypeUInt128:
		return types.Int128Field(new(big.Int).Abs(bigFromField(v))), nil
	default:
		return types.Field{}, &InvalidArgumentTypeError{Function: "ABS", Expected: "numeric", Actual: v.Type}
	}
}

func evaluateRound(v types.Field, precision int64) (types.Field, error) {
	if v.IsNull() {
		return v, nil
	}
	factor := math.Pow10(int(precision))
	var f float64
	switch v.Type {
	case types.FieldTypeFloat:
		f = v.FloatVal
	case types.FieldTypeInt:
		f = float64(v.IntVal)
	case types.FieldTypeUInt:
		f = float64(v.UIntVal)
	case types.FieldTypeDecimal:
		f = floatFromField(v)
	default:
		return types.Field{}, &InvalidArgumentTypeError{Function: "ROUND", Expected: "numeric", Actual: v.Type}
	}
	rounded := math.Round(f*factor) / factor
	if precision <= 0 {
		return types.IntField(int64(rounded)), nil
	}
	return types.FloatField(rounded), nil
}

func (s *ScalarFunction) String() string {
	return fmt.Sprintf("%s(...)", s.Fun)
}
