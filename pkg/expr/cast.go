package expr

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/weir/pkg/types"
)

// Cast converts Arg's value to Type, failing type-checking if no conversion
// rule exists between the two types.
type Cast struct {
	Type types.FieldType
	Arg  Expression
}

func (c *Cast) GetType(schema types.Schema) (ExpressionType, error) {
	at, err := c.Arg.GetType(schema)
	if err != nil {
		return ExpressionType{}, err
	}
	if !castable(at.ReturnType, c.Type) {
		return ExpressionType{}, &InvalidArgumentTypeError{
			Function: fmt.Sprintf("CAST(...AS %s)", c.Type), Expected: c.Type.String(), Actual: at.ReturnType,
		}
	}
	return ExpressionType{ReturnType: c.Type, Nullable: at.Nullable}, nil
}

func castable(from, to types.FieldType) bool {
	if from == to {
		return true
	}
	numeric := isNumeric(from) && isNumeric(to)
	toString := to == types.FieldTypeString || to == types.FieldTypeText
	fromString := from == types.FieldTypeString || from == types.FieldTypeText
	return numeric || toString || (fromString && isNumeric(to)) ||
		(from == types.FieldTypeBoolean && toString) || (fromString && to == types.FieldTypeBoolean)
}

func (c *Cast) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	v, err := c.Arg.Evaluate(record, schema)
	if err != nil {
		return types.Field{}, err
	}
	if v.IsNull() {
		return types.NullField(c.Type), nil
	}
	if v.Type == c.Type {
		return v, nil
	}
	switch c.Type {
	case types.FieldTypeString, types.FieldTypeText:
		return types.StringField(v.String()), nil
	case types.FieldTypeInt:
		switch v.Type {
		case types.FieldTypeString, types.FieldTypeText:
			n, err := strconv.ParseInt(v.StrVal, 10, 64)
			if err != nil {
				return types.Field{}, fmt.Errorf("%w: cannot cast %q to int", ErrInvalidArgumentType, v.StrVal)
			}
			return types.IntField(n), nil
		default:
			return types.IntField(int64(floatFromField(v))), nil
		}
	case types.FieldTypeUInt:
		return types.UIntField(uint64(floatFromField(v))), nil
	case types.FieldTypeFloat:
		switch v.Type {
		case types.FieldTypeString, types.FieldTypeText:
			f, err := strconv.ParseFloat(v.StrVal, 64)
			if err != nil {
				return types.Field{}, fmt.Errorf("%w: cannot cast %q to float", ErrInvalidArgumentType, v.StrVal)
			}
			return types.FloatField(f), nil
		default:
			return types.FloatField(floatFromField(v)), nil
		}
	case types.FieldTypeBoolean:
		switch v.Type {
		case types.FieldTypeString, types.FieldTypeText:
			b, err := strconv.ParseBool(v.StrVal)
			if err != nil {
				return types.Field{}, fmt.Errorf("%w: cannot cast %q to boolean", ErrInvalidArgumentType, v.StrVal)
			}
			return types.BoolField(b), nil
		default:
			return types.Field{}, &InvalidArgumentTypeError{Function: "CAST", Expected: "string", Actual: v.Type}
		}
	case types.FieldTypeDecimal:
		switch v.Type {
		case types.FieldTypeString, types.FieldTypeText:
			d, err := types.ParseDecimal(v.StrVal)
			if err != nil {
				return types.Field{}, fmt.Errorf("%w: cannot cast %q to decimal", ErrInvalidArgumentType, v.StrVal)
			}
			return types.DecimalField(d), nil
		default:
			return types.DecimalField(decimalFromField(v, 0)), nil
		}
	default:
		return types.Field{}, &InvalidArgumentTypeError{Function: "CAST", Expected: c.Type.String(), Actual: v.Type}
	}
}

func (c *Cast) String() string { return fmt.Sprintf("CAST(%s AS %s)", c.Arg, c.Type) }

// nowFunc is swappable in tests; production code always uses time.Now.
var nowFunc = time.Now

// Now returns the wall-clock time at evaluation. It type-checks to a
// non-nullable Timestamp regardless of schema.
type Now struct{}

func (Now) GetType(schema types.Schema) (ExpressionType, error) {
	return ExpressionType{ReturnType: types.FieldTypeTimestamp, Nullable: false}, nil
}

func (Now) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	return types.TimestampField(nowFunc()), nil
}

func (Now) String() string { return "NOW()" }
