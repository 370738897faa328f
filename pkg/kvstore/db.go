package kvstore

import (
	"bytes"
	"fmt"

	"github.com/cuemby/weir/pkg/log"
	"go.etcd.io/bbolt"
)

// Comparator orders two raw byte slices. It must be pure, total, and must
// never panic: a deserialization failure must be caught and degraded to
// Equal (see Compare), with a log line, rather than propagated.
type Comparator func(a, b []byte) int

// DBOptions configures a named database within an Env.
type DBOptions struct {
	AllowDup       bool
	FixedLengthKey bool
	Comparator     Comparator
}

// DB is a named database (a bbolt bucket) within an Env, with its
// duplicate-key and comparator configuration.
type DB struct {
	env        *Env
	name       []byte
	allowDup   bool
	fixedKey   bool
	comparator Comparator
}

// CreateOrOpenDB creates the named database if absent, or returns the
// existing descriptor. When the database is already open in this Env, the
// supplied options are ignored and the descriptor keeps the options it was
// first opened with; no error is returned for a difference.
func CreateOrOpenDB(env *Env, name string, opts DBOptions) (*DB, error) {
	if existing, ok := env.lookupDB(name); ok {
		return existing, nil
	}

	err := env.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create db %s: %w", name, err)
	}

	d := &DB{
		env:        env,
		name:       []byte(name),
		allowDup:   opts.AllowDup,
		fixedKey:   opts.FixedLengthKey,
		comparator: opts.Comparator,
	}

	env.mu.Lock()
	env.dbs[name] = d
	env.mu.Unlock()

	return d, nil
}

// Compare orders two keys using the database's custom comparator if one is
// installed, defaulting to byte-lexicographic order. A panicking comparator
// is caught and degraded to Equal (0), with a warning logged, never
// propagated — this mirrors the degrade-to-Equal discipline required of
// comparators over mapped memory.
func (d *DB) Compare(a, b []byte) (result int) {
	if d.comparator == nil {
		return bytes.Compare(a, b)
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("kvstore").Warn().
				Str("db", string(d.name)).
				Interface("panic", r).
				Msg("comparator panicked, degrading to Equal")
			result = 0
		}
	}()
	return d.comparator(a, b)
}

// recordIDWidth is the fixed width of the values stored in AllowDup
// databases: every secondary index maps an encoded index key to an 8-byte
// big-endian record id (see pkg/cache). Because the value width is fixed
// and known, the physical key can simply concatenate key || value: the
// logical key remains an exact byte-prefix of the physical key, which
// preserves prefix/range ordering for cursor seeks, and splitting the pair
// back apart is unambiguous (the last recordIDWidth bytes are the value).
const recordIDWidth = 8

// physicalKey builds the actual bbolt key for a logical (key, value) pair.
// When AllowDup is set, the value (expected to be a fixed-width record id)
// is appended directly after the key so multiple postings for the same
// logical key occupy distinct, contiguous bbolt keys ordered first by key,
// then by value.
func (d *DB) physicalKey(key, value []byte) []byte {
	if !d.allowDup {
		return key
	}
	out := make([]byte, 0, len(key)+len(value))
	out = append(out, key...)
	out = append(out, value...)
	return out
}

// splitPhysicalKey recovers (logicalKey, value) from a physical key for an
// AllowDup database, assuming the fixed recordIDWidth value suffix.
func (d *DB) splitPhysicalKey(physical []byte) (logicalKey, value []byte) {
	if !d.allowDup {
		return physical, nil
	}
	if len(physical) < recordIDWidth {
		return physical, nil
	}
	split := len(physical) - recordIDWidth
	return physical[:split], physical[split:]
}
