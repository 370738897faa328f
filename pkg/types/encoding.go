package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

// Encode produces the canonical order-preserving byte encoding for a field,
// per the index byte-encoding rules: big-endian fixed-width integers with a
// sign-bit offset, IEEE-754 total-order floats, null-terminated UTF-8
// strings, length-prefixed binary, and microsecond-offset timestamps.
func (f Field) Encode() []byte {
	switch f.Type {
	case FieldTypeNull:
		return nil
	case FieldTypeUInt:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, f.UIntVal)
		return b
	case FieldTypeInt:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(f.IntVal)^(1<<63))
		return b
	case FieldTypeUInt128:
		return encodeBigUnsigned(f.BigVal, 16)
	case FieldTypeInt128:
		return encodeBigSigned(f.BigVal, 16)
	case FieldTypeFloat:
		return encodeFloat64(f.FloatVal)
	case FieldTypeBoolean:
		if f.BoolVal {
			return []byte{0x01}
		}
		return []byte{0x00}
	case FieldTypeString, FieldTypeText:
		b := make([]byte, 0, len(f.StrVal)+1)
		b = append(b, []byte(f.StrVal)...)
		b = append(b, 0x00)
		return b
	case FieldTypeBinary:
		b := make([]byte, 4+len(f.BinVal))
		binary.BigEndian.PutUint32(b, uint32(len(f.BinVal)))
		copy(b[4:], f.BinVal)
		return b
	case FieldTypeTimestamp:
		micros := f.TimeVal.UnixMicro()
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(micros)^(1<<63))
		return b
	case FieldTypeDate:
		// days since epoch, offset like a signed integer for total order.
		days := f.TimeVal.Unix() / 86400
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(days)^(1<<63))
		return b
	case FieldTypeDuration:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(int64(f.DurVal))^(1<<63))
		return b
	case FieldTypeDecimal:
		return encodeDecimal(f.DecVal)
	default:
		// JSON/Point are not index-orderable; encode a stable but non-ordering
		// representation so equality-only uses (e.g. full-text keys never hit
		// this path) still behave deterministically.
		return []byte(f.String())
	}
}

func encodeFloat64(v float64) []byte {
	bits := math.Float64bits(v)
	if bits>>63 == 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, bits)
	return b
}

// encodeBigUnsigned encodes a non-negative big.Int into a fixed-width
// big-endian buffer of width bytes.
func encodeBigUnsigned(v *big.Int, width int) []byte {
	b := make([]byte, width)
	if v == nil {
		return b
	}
	raw := v.Bytes()
	if len(raw) > width {
		raw = raw[len(raw)-width:]
	}
	copy(b[width-len(raw):], raw)
	return b
}

// encodeBigSigned encodes a signed big.Int with the sign bit flipped so that
// lexicographic byte order matches numeric order, mirroring the fixed-width
// integer encodings above.
func encodeBigSigned(v *big.Int, width int) []byte {
	if v == nil {
		v = big.NewInt(0)
	}
	offset := new(big.Int).Lsh(big.NewInt(1), uint(width*8-1))
	shifted := new(big.Int).Add(v, offset)
	return encodeBigUnsigned(shifted, width)
}

// encodeDecimal encodes a Decimal as a sign-offset big-endian mantissa
// followed by the scale, so that values of equal scale order numerically;
// scale is part of the schema in practice, but is carried for safety.
func encodeDecimal(d Decimal) []byte {
	unscaled := d.Unscaled
	if unscaled == nil {
		unscaled = big.NewInt(0)
	}
	mantissa := encodeBigSigned(unscaled, 16)
	b := make([]byte, len(mantissa)+4)
	copy(b, mantissa)
	binary.BigEndian.PutUint32(b[len(mantissa):], uint32(d.Scale))
	return b
}

// EncodeComposite encodes a slice of fields as a composite sorted-inverted
// index key: a null-bitmap prefix (one bit per field, set when that field is
// null, so that null sorts distinctly and consistently from any encoded
// value) followed by the concatenation of each field's own encoding.
func EncodeComposite(fields []Field) []byte {
	bitmapLen := (len(fields) + 7) / 8
	bitmap := make([]byte, bitmapLen)
	var body []byte
	for i, f := range fields {
		if f.IsNull() {
			bitmap[i/8] |= 1 << uint(i%8)
			continue
		}
		body = append(body, f.Encode()...)
	}
	out := make([]byte, 0, bitmapLen+len(body))
	out = append(out, bitmap...)
	out = append(out, body...)
	return out
}

// EncodeCompositePrefix encodes a leading subset of a composite index key:
// totalFields is the full field count of the index the key belongs to (so
// the null bitmap has the same width as a full EncodeComposite call over
// that index), and fields holds only the values bound so far. Bits for the
// fields beyond len(fields) are left unset, i.e. unbound trailing fields
// are assumed non-null for the purpose of positioning a cursor; callers
// must still apply a residual filter to rows whose trailing fields are
// actually null and should not have matched.
func EncodeCompositePrefix(totalFields int, fields []Field) []byte {
	bitmapLen := (totalFields + 7) / 8
	bitmap := make([]byte, bitmapLen)
	var body []byte
	for i, f := range fields {
		if f.IsNull() {
			bitmap[i/8] |= 1 << uint(i%8)
			continue
		}
		body = append(body, f.Encode()...)
	}
	out := make([]byte, 0, bitmapLen+len(body))
	out = append(out, bitmap...)
	out = append(out, body...)
	return out
}

// DecodeErrorString formats a comparator-safe description of a decode
// failure; comparators must never panic, only log and degrade to Equal.
func DecodeErrorString(db string, err error) string {
	return fmt.Sprintf("comparator decode failure in %s: %v", db, err)
}
