package expr

import (
	"fmt"

	"github.com/cuemby/weir/pkg/types"
)

// AggregateFunc tags which aggregator an AggregateFunction node names. The
// actual incremental aggregation state lives in pkg/operator; this node is
// a marker the SQL planner hoists out of a projection/having expression so
// the pre-aggregation/aggregation/post-aggregation split described in the
// SQL planner can be built, and a type-checking stand-in for its result
// column.
type AggregateFunc int

const (
	AggregateCount AggregateFunc = iota
	AggregateSum
	AggregateAvg
	AggregateMin
	AggregateMax
	AggregateMinValue
	AggregateMaxValue
)

var aggregateFuncNames = map[AggregateFunc]string{
	AggregateCount: "COUNT", AggregateSum: "SUM", AggregateAvg: "AVG",
	AggregateMin: "MIN", AggregateMax: "MAX",
	AggregateMinValue: "MIN_VALUE", AggregateMaxValue: "MAX_VALUE",
}

func (f AggregateFunc) String() string {
	if s, ok := aggregateFuncNames[f]; ok {
		return s
	}
	return "?"
}

// AggregateFunction names an aggregate computed over a group. Args[0] is
// the value aggregated; MinValue/MaxValue additionally require Args[1], the
// companion column returned at the extreme of Args[0].
type AggregateFunction struct {
	Fun  AggregateFunc
	Args []Expression
}

func (a *AggregateFunction) GetType(schema types.Schema) (ExpressionType, error) {
	switch a.Fun {
	case AggregateCount:
		return ExpressionType{ReturnType: types.FieldTypeInt}, nil
	case AggregateSum:
		if len(a.Args) != 1 {
			return ExpressionType{}, &InvalidArgumentCountError{Function: "SUM", Expected: "1", Actual: len(a.Args)}
		}
		at, err := a.Args[0].GetType(schema)
		if err != nil {
			return ExpressionType{}, err
		}
		if !isNumeric(at.ReturnType) {
			return ExpressionType{}, &InvalidArgumentTypeError{Function: "SUM", Expected: "numeric", Actual: at.ReturnType}
		}
		return ExpressionType{ReturnType: at.ReturnType, Nullable: true}, nil
	case AggregateAvg:
		if len(a.Args) != 1 {
			return ExpressionType{}, &InvalidArgumentCountError{Function: "AVG", Expected: "1", Actual: len(a.Args)}
		}
		at, err := a.Args[0].GetType(schema)
		if err != nil {
			return ExpressionType{}, err
		}
		if !isNumeric(at.ReturnType) {
			return ExpressionType{}, &InvalidArgumentTypeError{Function: "AVG", Expected: "numeric", Actual: at.ReturnType}
		}
		return ExpressionType{ReturnType: types.FieldTypeFloat, Nullable: true}, nil
	case AggregateMin, AggregateMax:
		if len(a.Args) != 1 {
			return ExpressionType{}, &InvalidArgumentCountError{Function: a.Fun.String(), Expected: "1", Actual: len(a.Args)}
		}
		at, err := a.Args[0].GetType(schema)
		if err != nil {
			return ExpressionType{}, err
		}
		return ExpressionType{ReturnType: at.ReturnType, Nullable: true}, nil
	case AggregateMinValue, AggregateMaxValue:
		if len(a.Args) != 2 {
			return ExpressionType{}, &InvalidArgumentCountError{Function: a.Fun.String(), Expected: "2", Actual: len(a.Args)}
		}
		companion, err := a.Args[1].GetType(schema)
		if err != nil {
			return ExpressionType{}, err
		}
		return ExpressionType{ReturnType: companion.ReturnType, Nullable: true}, nil
	default:
		return ExpressionType{}, fmt.Errorf("%w: aggregate function %v", ErrUnknownFunction, a.Fun)
	}
}

// Evaluate is not meaningful on a raw record stream: aggregate state is
// accumulated incrementally by pkg/operator's Aggregation operator, which
// reads Args directly rather than calling Evaluate on the node itself.
func (a *AggregateFunction) Evaluate(record types.Record, schema types.Schema) (types.Field, error) {
	return types.Field{}, fmt.Errorf("aggregate function %s cannot be evaluated outside an Aggregation operator", a.Fun)
}

func (a *AggregateFunction) String() string { return fmt.Sprintf("%s(...)", a.Fun) }
