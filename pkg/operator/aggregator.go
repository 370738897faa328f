package operator

import (
	"fmt"
	"math/big"

	"github.com/cuemby/weir/pkg/expr"
	"github.com/cuemby/weir/pkg/types"
)

// Aggregator is incremental aggregate state over one column of a group:
// init with the column's declared result type, then insert/delete/update
// individual rows, each returning the aggregate's current value.
type Aggregator interface {
	Init(returnType types.FieldType)
	Insert(args []types.Field) (types.Field, error)
	Delete(args []types.Field) (types.Field, error)
	Update(oldArgs, newArgs []types.Field) (types.Field, error)
}

// NewAggregator returns a fresh instance of the named aggregator.
func NewAggregator(fun expr.AggregateFunc) (Aggregator, error) {
	switch fun {
	case expr.AggregateCount:
		return &CountAggregator{}, nil
	case expr.AggregateSum:
		return &SumAggregator{}, nil
	case expr.AggregateAvg:
		return &AvgAggregator{}, nil
	case expr.AggregateMin:
		return &ExtremeAggregator{wantMax: false}, nil
	case expr.AggregateMax:
		return &ExtremeAggregator{wantMax: true}, nil
	case expr.AggregateMinValue:
		return &CompanionExtremeAggregator{wantMax: false}, nil
	case expr.AggregateMaxValue:
		return &CompanionExtremeAggregator{wantMax: true}, nil
	default:
		return nil, fmt.Errorf("operator: unknown aggregator %v", fun)
	}
}

// CountAggregator counts non-null argument rows, or every row when called
// with no arguments (COUNT(*)).
type CountAggregator struct{ count int64 }

func (a *CountAggregator) Init(returnType types.FieldType) {}

func (a *CountAggregator) countsRow(args []types.Field) bool {
	return len(args) == 0 || !args[0].IsNull()
}

func (a *CountAggregator) Insert(args []types.Field) (types.Field, error) {
	if a.countsRow(args) {
		a.count++
	}
	return types.IntField(a.count), nil
}

func (a *CountAggregator) Delete(args []types.Field) (types.Field, error) {
	if a.countsRow(args) {
		a.count--
	}
	return types.IntField(a.count), nil
}

func (a *CountAggregator) Update(oldArgs, newArgs []types.Field) (types.Field, error) {
	if a.countsRow(oldArgs) && !a.countsRow(newArgs) {
		a.count--
	} else if !a.countsRow(oldArgs) && a.countsRow(newArgs) {
		a.count++
	}
	return types.IntField(a.count), nil
}

// SumAggregator maintains a running sum, tracking both an integer
// (big.Int) and a float64 accumulator and reporting whichever matches the
// declared return type.
type SumAggregator struct {
	returnType types.FieldType
	intSum     *big.Int
	floatSum   float64
}

func (a *SumAggregator) Init(returnType types.FieldType) {
	a.returnType = returnType
	a.intSum = big.NewInt(0)
}

func (a *SumAggregator) add(v types.Field, sign int64) {
	if v.IsNull() {
		return
	}
	switch v.Type {
	case types.FieldTypeFloat:
		a.floatSum += float64(sign) * v.FloatVal
	case types.FieldTypeDecimal:
		a.floatSum += float64(sign) * decimalToFloat(v.DecVal)
	default:
		delta := fieldToBig(v)
		if sign < 0 {
			delta.Neg(delta)
		}
		a.intSum.Add(a.intSum, delta)
	}
}

func (a *SumAggregator) current() (types.Field, error) {
	if a.returnType == types.FieldTypeFloat {
		return types.FloatField(a.floatSum), nil
	}
	return fieldFromBigExported(a.intSum, a.returnType)
}

func (a *SumAggregator) Insert(args []types.Field) (types.Field, error) {
	a.add(args[0], 1)
	return a.current()
}

func (a *SumAggregator) Delete(args []types.Field) (types.Field, error) {
	a.add(args[0], -1)
	return a.current()
}

func (a *SumAggregator) Update(oldArgs, newArgs []types.Field) (types.Field, error) {
	a.add(oldArgs[0], -1)
	a.add(newArgs[0], 1)
	return a.current()
}

// AvgAggregator maintains sum and count and reports sum/count as a float64.
type AvgAggregator struct {
	sum   float64
	count int64
}

func (a *AvgAggregator) Init(returnType types.FieldType) {}

func (a *AvgAggregator) current() (types.Field, error) {
	if a.count == 0 {
		return types.NullField(types.FieldTypeFloat), nil
	}
	return types.FloatField(a.sum / float64(a.count)), nil
}

func (a *AvgAggregator) Insert(args []types.Field) (types.Field, error) {
	if !args[0].IsNull() {
		a.sum += fieldToFloat(args[0])
		a.count++
	}
	return a.current()
}

func (a *AvgAggregator) Delete(args []types.Field) (types.Field, error) {
	if !args[0].IsNull() {
		a.sum -= fieldToFloat(args[0])
		a.count--
	}
	return a.current()
}

func (a *AvgAggregator) Update(oldArgs, newArgs []types.Field) (types.Field, error) {
	if _, err := a.Delete(oldArgs); err != nil {
		return types.Field{}, err
	}
	return a.Insert(newArgs)
}

// ExtremeAggregator maintains a sorted multiset of inserted values,
// reporting the current minimum (wantMax=false) or maximum (wantMax=true)
// so a deleted duplicate doesn't lose track of the next-most-extreme value.
type ExtremeAggregator struct {
	wantMax bool
	set     orderedMultiset
}

func (a *ExtremeAggregator) Init(returnType types.FieldType) {}

func (a *ExtremeAggregator) current() (types.Field, error) {
	v, ok := a.set.extreme(a.wantMax)
	if !ok {
		return types.Field{Type: types.FieldTypeNull}, nil
	}
	return v, nil
}

func (a *ExtremeAggregator) Insert(args []types.Field) (types.Field, error) {
	if !args[0].IsNull() {
		if err := a.set.add(args[0]); err != nil {
			return types.Field{}, err
		}
	}
	return a.current()
}

func (a *ExtremeAggregator) Delete(args []types.Field) (types.Field, error) {
	if !args[0].IsNull() {
		a.set.remove(args[0])
	}
	return a.current()
}

func (a *ExtremeAggregator) Update(oldArgs, newArgs []types.Field) (types.Field, error) {
	if _, err := a.Delete(oldArgs); err != nil {
		return types.Field{}, err
	}
	return a.Insert(newArgs)
}

// CompanionExtremeAggregator is MIN_VALUE/MAX_VALUE: args[0] orders the
// multiset, args[1] is the companion value returned at the current extreme.
type CompanionExtremeAggregator struct {
	wantMax bool
	set     orderedCompanionMultiset
}

func (a *CompanionExtremeAggregator) Init(returnType types.FieldType) {}

func (a *CompanionExtremeAggregator) current() (types.Field, error) {
	v, ok := a.set.extreme(a.wantMax)
	if !ok {
		return types.Field{Type: types.FieldTypeNull}, nil
	}
	return v, nil
}

func (a *CompanionExtremeAggregator) Insert(args []types.Field) (types.Field, error) {
	if !args[0].IsNull() {
		if err := a.set.add(args[0], args[1]); err != nil {
			return types.Field{}, err
		}
	}
	return a.current()
}

func (a *CompanionExtremeAggregator) Delete(args []types.Field) (types.Field, error) {
	if !args[0].IsNull() {
		a.set.remove(args[0], args[1])
	}
	return a.current()
}

func (a *CompanionExtremeAggregator) Update(oldArgs, newArgs []types.Field) (types.Field, error) {
	if _, err := a.Delete(oldArgs); err != nil {
		return types.Field{}, err
	}
	return a.Insert(newArgs)
}

func fieldToFloat(f types.Field) float64 {
	switch f.Type {
	case types.FieldTypeInt:
		return float64(f.IntVal)
	case types.FieldTypeUInt:
		return float64(f.UIntVal)
	case types.FieldTypeFloat:
		return f.FloatVal
	case types.FieldTypeDecimal:
		return decimalToFloat(f.DecVal)
	default:
		return 0
	}
}

func decimalToFloat(d types.Decimal) float64 {
	if d.Unscaled == nil {
		return 0
	}
	out := new(big.Float).SetInt(d.Unscaled)
	scale := new(big.Float).SetFloat64(1)
	for i := int32(0); i < d.Scale; i++ {
		scale.Mul(scale, big.NewFloat(10))
	}
	out.Quo(out, scale)
	f, _ := out.Float64()
	return f
}

func fieldToBig(f types.Field) *big.Int {
	switch f.Type {
	case types.FieldTypeUInt:
		return new(big.Int).SetUint64(f.UIntVal)
	case types.FieldTypeInt:
		return big.NewInt(f.IntVal)
	case types.FieldTypeUInt128, types.FieldTypeInt128:
		if f.BigVal == nil {
			return big.NewInt(0)
		}
		return new(big.Int).Set(f.BigVal)
	default:
		return big.NewInt(0)
	}
}

func fieldFromBigExported(v *big.Int, t types.FieldType) (types.Field, error) {
	switch t {
	case types.FieldTypeUInt:
		if v.Sign() < 0 || !v.IsUint64() {
			return types.Field{}, fmt.Errorf("operator: sum overflowed uint64")
		}
		return types.UIntField(v.Uint64()), nil
	case types.FieldTypeUInt128:
		return types.UInt128Field(new(big.Int).Set(v)), nil
	case types.FieldTypeInt128:
		return types.Int128Field(new(big.Int).Set(v)), nil
	default:
		if !v.IsInt64() {
			return types.Field{}, fmt.Errorf("operator: sum overflowed int64")
		}
		return types.IntField(v.Int64()), nil
	}
}
