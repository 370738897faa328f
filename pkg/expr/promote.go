package expr

import (
	"math"
	"math/big"

	"github.com/cuemby/weir/pkg/types"
)

// integerRank orders integer field types from widest to narrowest for
// promotion: U128 > I128 > U64 > I64 (weir has no narrower sized integer
// field types than these four).
func integerRank(t types.FieldType) (rank int, ok bool) {
	switch t {
	case types.FieldTypeUInt128:
		return 4, true
	case types.FieldTypeInt128:
		return 3, true
	case types.FieldTypeUInt:
		return 2, true
	case types.FieldTypeInt:
		return 1, true
	default:
		return 0, false
	}
}

// isNumeric reports whether t participates in arithmetic promotion.
func isNumeric(t types.FieldType) bool {
	switch t {
	case types.FieldTypeUInt, types.FieldTypeInt, types.FieldTypeUInt128, types.FieldTypeInt128,
		types.FieldTypeFloat, types.FieldTypeDecimal:
		return true
	default:
		return false
	}
}

// promoteNumericType computes the result type of combining two numeric
// field types: widest integer type wins between two integers, an integer
// mixed with a float promotes the result to float64, any decimal operand
// keeps the result decimal (even against a float), and
// timestamp-minus-timestamp (handled by the caller, not here) yields
// duration.
func promoteNumericType(a, b types.FieldType) (types.FieldType, error) {
	if a == types.FieldTypeDecimal || b == types.FieldTypeDecimal {
		return types.FieldTypeDecimal, nil
	}
	if a == types.FieldTypeFloat || b == types.FieldTypeFloat {
		return types.FieldTypeFloat, nil
	}
	ra, aok := integerRank(a)
	rb, bok := integerRank(b)
	if !aok || !bok {
		return 0, &InvalidArgumentTypeError{Function: "arithmetic", Expected: "numeric", Actual: a}
	}
	if ra >= rb {
		return a, nil
	}
	return b, nil
}

// bigFromField extracts the integer value of a numeric field as a *big.Int,
// for overflow-checked promotion arithmetic.
func bigFromField(f types.Field) *big.Int {
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

// fieldFromBig packs v back into a Field of the given result type, checking
// that it fits — returning ErrOverflow if not.
func fieldFromBig(v *big.Int, t types.FieldType) (types.Field, error) {
	switch t {
	case types.FieldTypeUInt:
		if v.Sign() < 0 || !v.IsUint64() {
			return types.Field{}, ErrOverflow
		}
		return types.UIntField(v.Uint64()), nil
	case types.FieldTypeInt:
		if !v.IsInt64() {
			return types.Field{}, ErrOverflow
		}
		return types.IntField(v.Int64()), nil
	case types.FieldTypeUInt128:
		if v.Sign() < 0 || v.BitLen() > 128 {
			return types.Field{}, ErrOverflow
		}
		return types.UInt128Field(new(big.Int).Set(v)), nil
	case types.FieldTypeInt128:
		if v.BitLen() > 127 {
			return types.Field{}, ErrOverflow
		}
		return types.Int128Field(new(big.Int).Set(v)), nil
	default:
		return types.Field{}, ErrOverflow
	}
}

// floatFromField widens any numeric field to a float64 for float-domain
// arithmetic.
func floatFromField(f types.Field) float64 {
	switch f.Type {
	case types.FieldTypeUInt:
		return float64(f.UIntVal)
	case types.FieldTypeInt:
		return float64(f.IntVal)
	case types.FieldTypeFloat:
		return f.FloatVal
	case types.FieldTypeUInt128, types.FieldTypeInt128:
		if f.BigVal == nil {
			return 0
		}
		out, _ := new(big.Float).SetInt(f.BigVal).Float64()
		return out
	case types.FieldTypeDecimal:
		out, _ := new(big.Float).SetInt(f.DecVal.Unscaled).Float64()
		if f.DecVal.Scale > 0 {
			out /= math.Pow10(int(f.DecVal.Scale))
		}
		return out
	default:
		return 0
	}
}

// decimalFromField widens a numeric field to a Decimal at the given scale,
// for mixed decimal arithmetic and comparison.
func decimalFromField(f types.Field, scale int32) types.Decimal {
	if f.Type == types.FieldTypeDecimal {
		if f.DecVal.Scale >= scale {
			return f.DecVal
		}
		up := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale-f.DecVal.Scale)), nil)
		return types.Decimal{Unscaled: new(big.Int).Mul(f.DecVal.Unscaled, up), Scale: scale}
	}
	unscaled := bigFromField(f)
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	return types.Decimal{Unscaled: new(big.Int).Mul(unscaled, factor), Scale: scale}
}
