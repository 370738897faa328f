// Package types defines the wire data model shared by every weir component:
// tagged field values, schemas, records and the dataflow operations that
// carry them between DAG nodes.
package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// FieldType tags the variant held by a Field.
type FieldType int

const (
	FieldTypeUInt FieldType = iota
	FieldTypeUInt128
	FieldTypeInt
	FieldTypeInt128
	FieldTypeFloat
	FieldTypeBoolean
	FieldTypeString
	FieldTypeText
	FieldTypeBinary
	FieldTypeDecimal
	FieldTypeTimestamp
	FieldTypeDate
	FieldTypeJSON
	FieldTypePoint
	FieldTypeDuration
	FieldTypeNull
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeUInt:
		return "uint"
	case FieldTypeUInt128:
		return "uint128"
	case FieldTypeInt:
		return "int"
	case FieldTypeInt128:
		return "int128"
	case FieldTypeFloat:
		return "float"
	case FieldTypeBoolean:
		return "boolean"
	case FieldTypeString:
		return "string"
	case FieldTypeText:
		return "text"
	case FieldTypeBinary:
		return "binary"
	case FieldTypeDecimal:
		return "decimal"
	case FieldTypeTimestamp:
		return "timestamp"
	case FieldTypeDate:
		return "date"
	case FieldTypeJSON:
		return "json"
	case FieldTypePoint:
		return "point"
	case FieldTypeDuration:
		return "duration"
	case FieldTypeNull:
		return "null"
	default:
		return "unknown"
	}
}

// Point is a 2-D geo coordinate.
type Point struct {
	X float64
	Y float64
}

// Field is a tagged value. Only the member matching Type is meaningful; this
// mirrors a Rust-style enum as a Go struct so evaluation can match on Type
// without dynamic dispatch.
type Field struct {
	Type      FieldType
	UIntVal   uint64
	BigVal    *big.Int // UInt128 / Int128
	IntVal    int64
	FloatVal  float64
	BoolVal   bool
	StrVal    string // String / Text
	BinVal    []byte
	DecVal    Decimal
	TimeVal   time.Time // Timestamp (with offset) / Date
	JSONVal   json.RawMessage
	PointVal  Point
	DurVal    time.Duration
}

// Decimal is a fixed-precision decimal value: unscaled integer mantissa plus
// a scale (number of digits after the decimal point), matching the original
// dozer-types fixed-point representation. See DESIGN.md for why this is a
// hand-rolled mantissa encoding rather than a dependency on an arbitrary
// precision decimal type for the on-disk byte ordering.
type Decimal struct {
	Unscaled *big.Int
	Scale    int32
}

// String formats d via shopspring/decimal rather than hand-rolling digit
// placement, since ToShopspring already owns that conversion.
func (d Decimal) String() string {
	return d.ToShopspring().String()
}

func NullField(t FieldType) Field { return Field{Type: FieldTypeNull} }

func UIntField(v uint64) Field  { return Field{Type: FieldTypeUInt, UIntVal: v} }
func IntField(v int64) Field    { return Field{Type: FieldTypeInt, IntVal: v} }
func FloatField(v float64) Field { return Field{Type: FieldTypeFloat, FloatVal: v} }
func BoolField(v bool) Field    { return Field{Type: FieldTypeBoolean, BoolVal: v} }
func StringField(v string) Field { return Field{Type: FieldTypeString, StrVal: v} }
func TextField(v string) Field  { return Field{Type: FieldTypeText, StrVal: v} }
func BinaryField(v []byte) Field { return Field{Type: FieldTypeBinary, BinVal: v} }
func TimestampField(v time.Time) Field {
	return Field{Type: FieldTypeTimestamp, TimeVal: v}
}
func DateField(v time.Time) Field { return Field{Type: FieldTypeDate, TimeVal: v} }
func DurationField(v time.Duration) Field {
	return Field{Type: FieldTypeDuration, DurVal: v}
}
func DecimalField(d Decimal) Field { return Field{Type: FieldTypeDecimal, DecVal: d} }
func JSONField(v json.RawMessage) Field { return Field{Type: FieldTypeJSON, JSONVal: v} }
func PointField(v Point) Field   { return Field{Type: FieldTypePoint, PointVal: v} }

func Int128Field(v *big.Int) Field  { return Field{Type: FieldTypeInt128, BigVal: v} }
func UInt128Field(v *big.Int) Field { return Field{Type: FieldTypeUInt128, BigVal: v} }

// IsNull reports whether the field is the null variant.
func (f Field) IsNull() bool { return f.Type == FieldTypeNull }

// Equal reports deep value equality for two fields of the same type. Fields
// of differing type are never equal, even null vs. null of different
// declared types, matching schema-checked comparison semantics.
func (f Field) Equal(other Field) bool {
	if f.Type != other.Type {
		return false
	}
	switch f.Type {
	case FieldTypeNull:
		return true
	case FieldTypeUInt:
		return f.UIntVal == other.UIntVal
	case FieldTypeUInt128, FieldTypeInt128:
		if f.BigVal == nil || other.BigVal == nil {
			return f.BigVal == other.BigVal
		}
		return f.BigVal.Cmp(other.BigVal) == 0
	case FieldTypeInt:
		return f.IntVal == other.IntVal
	case FieldTypeFloat:
		return f.FloatVal == other.FloatVal
	case FieldTypeBoolean:
		return f.BoolVal == other.BoolVal
	case FieldTypeString, FieldTypeText:
		return f.StrVal == other.StrVal
	case FieldTypeBinary:
		if len(f.BinVal) != len(other.BinVal) {
			return false
		}
		for i := range f.BinVal {
			if f.BinVal[i] != other.BinVal[i] {
				return false
			}
		}
		return true
	case FieldTypeDecimal:
		if f.DecVal.Unscaled == nil || other.DecVal.Unscaled == nil {
			return f.DecVal.Unscaled == other.DecVal.Unscaled
		}
		return f.DecVal.Scale == other.DecVal.Scale && f.DecVal.Unscaled.Cmp(other.DecVal.Unscaled) == 0
	case FieldTypeTimestamp, FieldTypeDate:
		return f.TimeVal.Equal(other.TimeVal)
	case FieldTypeJSON:
		return string(f.JSONVal) == string(other.JSONVal)
	case FieldTypePoint:
		return f.PointVal == other.PointVal
	case FieldTypeDuration:
		return f.DurVal == other.DurVal
	default:
		return false
	}
}

func (f Field) String() string {
	switch f.Type {
	case FieldTypeNull:
		return "<null>"
	case FieldTypeUInt:
		return fmt.Sprintf("%d", f.UIntVal)
	case FieldTypeUInt128, FieldTypeInt128:
		if f.BigVal == nil {
			return "0"
		}
		return f.BigVal.String()
	case FieldTypeInt:
		return fmt.Sprintf("%d", f.IntVal)
	case FieldTypeFloat:
		return fmt.Sprintf("%v", f.FloatVal)
	case FieldTypeBoolean:
		return fmt.Sprintf("%v", f.BoolVal)
	case FieldTypeString, FieldTypeText:
		return f.StrVal
	case FieldTypeBinary:
		return fmt.Sprintf("%x", f.BinVal)
	case FieldTypeDecimal:
		return f.DecVal.String()
	case FieldTypeTimestamp, FieldTypeDate:
		return f.TimeVal.Format(time.RFC3339Nano)
	case FieldTypeJSON:
		return string(f.JSONVal)
	case FieldTypePoint:
		return fmt.Sprintf("(%v,%v)", f.PointVal.X, f.PointVal.Y)
	case FieldTypeDuration:
		return f.DurVal.String()
	default:
		return "<unknown>"
	}
}
