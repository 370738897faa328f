package expr

import (
	"fmt"
	"time"

	"github.com/cuemby/weir/pkg/types"
)

// truncateTo rounds t down to the start of the named unit, in UTC.
func truncateTo(t time.Time, part string) time.Time {
	t = t.UTC()
	switch part {
	case "year":
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case "hour":
		return t.Truncate(time.Hour)
	case "minute":
		return t.Truncate(time.Minute)
	case "second":
		return t.Truncate(time.Second)
	default:
		return t
	}
}

// DateTimeFunc tags which date/time function a DateTimeFunction node
// computes.
type DateTimeFunc int

const (
	DateTimeExtract DateTimeFunc = iota
	DateTimeTrunc
)

// DateTimeFunction computes a value derived from a timestamp/date argument:
// EXTRACT(part FROM arg) or DATE_TRUNC(part, arg).
type DateTimeFunction struct {
	Fun  DateTimeFunc
	Part string // "year", "month", "day", "hour", "minute", "second"
	Arg  Expression
}

func (d *DateTimeFunction) GetType(schema types.Schema) (ExpressionType, error) {
	at, err := d.Arg.GetType(schema)
	if err != nil {
		return ExpressionType{}, err
	}
	if at.ReturnType != types.FieldTypeTimestamp && at.ReturnType != types.FieldTypeDate {
		return ExpressionType{}, &InvalidArgumentTypeError{
			Function: "EXTRACT", Expected: "timestamp", Actual: at.ReturnType,
		}
	}
	switch d.Fun {
	case DateTimeExtract:
		return ExpressionType{ReturnType: types.FieldTypeInt, Nullable: at.Nullable}, nil
	case DateTimeTrunc:
		return ExpressionType{ReturnType: at.ReturnType, Nullable: at.Nullable}, nil
	default:
		return ExpressionType{}, fmt.Errorf("%w: datetime function %d", ErrUnknownFunction, d.Fun)
	}
}

func (d *DateTimeFunction) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	v, err := d.Arg.Evaluate(record, schema)
	if err != nil {
		return types.Field{}, err
	}
	if v.IsNull() {
		return v, nil
	}
	t := v.TimeVal
	switch d.Fun {
	case DateTimeExtract:
		switch d.Part {
		case "year":
			return types.IntField(int64(t.Year())), nil
		case "month":
			return types.IntField(int64(t.Month())), nil
		case "day":
			return types.IntField(int64(t.Day())), nil
		case "hour":
			return types.IntField(int64(t.Hour())), nil
		case "minute":
			return types.IntField(int64(t.Minute())), nil
		case "second":
			return types.IntField(int64(t.Second())), nil
		default:
			return types.Field{}, fmt.Errorf("%w: unknown EXTRACT part %q", ErrInvalidArgumentType, d.Part)
		}
	case DateTimeTrunc:
		truncated := truncateTo(t, d.Part)
		if v.Type == types.FieldTypeDate {
			return types.DateField(truncated), nil
		}
		return types.TimestampField(truncated), nil
	default:
		return types.Field{}, fmt.Errorf("%w: datetime function %d", ErrUnknownFunction, d.Fun)
	}
}

func (d *DateTimeFunction) String() string { return fmt.Sprintf("DATETIME(%s,%s)", d.Part, d.Arg) }
