package types

import "time"

// Record is a fixed-length tuple of fields conforming to a Schema, plus an
// optional lifetime marker used by time-windowed operators to bound
// retention (see pkg/operator window semantics).
type Record struct {
	Values   []Field
	Version  uint32
	Lifetime *time.Time
}

// Clone returns a deep-enough copy of the record for safe mutation
// (appending window columns, bumping version) without aliasing the
// original's backing slice.
func (r Record) Clone() Record {
	values := make([]Field, len(r.Values))
	copy(values, r.Values)
	var lifetime *time.Time
	if r.Lifetime != nil {
		t := *r.Lifetime
		lifetime = &t
	}
	return Record{Values: values, Version: r.Version, Lifetime: lifetime}
}

// Equal reports field-wise equality, ignoring Version and Lifetime — used by
// round-trip tests (P3) that only care about observable field content.
func (r Record) Equal(other Record) bool {
	if len(r.Values) != len(other.Values) {
		return false
	}
	for i := range r.Values {
		if !r.Values[i].Equal(other.Values[i]) {
			return false
		}
	}
	return true
}

// WithAppended returns a new record with additional trailing field values,
// used by window operators to append window_start/window_end columns.
func (r Record) WithAppended(fields ...Field) Record {
	values := make([]Field, 0, len(r.Values)+len(fields))
	values = append(values, r.Values...)
	values = append(values, fields...)
	return Record{Values: values, Version: r.Version, Lifetime: r.Lifetime}
}
