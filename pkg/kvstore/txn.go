package kvstore

import (
	"errors"
	"fmt"

	"github.com/cuemby/weir/pkg/types"
	"go.etcd.io/bbolt"
)

// PutOptions configures a Put call.
type PutOptions struct {
	NoOverwrite bool
}

// Txn is a scoped read or write transaction over an Env. Every Txn must be
// committed or aborted on every exit path; Begin{RO,RW} does not itself
// start a goroutine or background work, so callers control the scope with
// plain defer.
type Txn struct {
	tx       *bbolt.Tx
	writable bool
	done     bool
}

// BeginRO starts a read-only transaction. Many read transactions may be
// open concurrently; each sees a consistent snapshot as of its start.
func BeginRO(env *Env) (*Txn, error) {
	tx, err := env.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("begin ro txn: %w", err)
	}
	return &Txn{tx: tx, writable: false}, nil
}

// BeginRW starts a write transaction. Only one write transaction may be
// open at a time per Env; bbolt blocks a second writer until the first
// commits or rolls back, giving the single-writer discipline the cache
// layer relies on.
func BeginRW(env *Env) (*Txn, error) {
	tx, err := env.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("begin rw txn: %w", err)
	}
	return &Txn{tx: tx, writable: true}, nil
}

// Commit finalizes a write transaction. On a read transaction it only
// releases the snapshot, as Abort does (call Abort for read transactions
// instead, by convention, though Commit is also safe to call on either).
func (t *Txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if !t.writable {
		return t.tx.Rollback()
	}
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
			return fmt.Errorf("%w: %v", types.ErrMapFull, err)
		}
		return fmt.Errorf("commit txn: %w", err)
	}
	return nil
}

// Abort rolls back the transaction. Safe to call after Commit (no-op).
func (t *Txn) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

func (t *Txn) bucket(db *DB) (*bbolt.Bucket, error) {
	b := t.tx.Bucket(db.name)
	if b == nil {
		return nil, fmt.Errorf("%w: database %q not found in transaction", types.ErrNotFound, string(db.name))
	}
	return b, nil
}

// Put writes key -> value in db. With AllowDup, multiple values may exist
// for the same logical key; NoOverwrite rejects the write if the exact
// physical key already exists.
func (t *Txn) Put(db *DB, key, value []byte, opts PutOptions) error {
	b, err := t.bucket(db)
	if err != nil {
		return err
	}
	physical := db.physicalKey(key, value)
	if opts.NoOverwrite {
		if existing := b.Get(physical); existing != nil {
			return fmt.Errorf("key already exists, no_overwrite set")
		}
	}
	storedValue := value
	if db.allowDup {
		// the value is already encoded into the physical key; store a
		// zero-length marker so the bucket entry still carries a payload.
		storedValue = []byte{}
	}
	if err := b.Put(physical, storedValue); err != nil {
		if errors.Is(err, bbolt.ErrTxNotWritable) {
			return fmt.Errorf("write attempted on read-only txn: %w", err)
		}
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

// Get reads the value for key in a non-dup database. Returns ErrNotFound if
// absent. Not valid for AllowDup databases — use a Cursor instead, since a
// dup key may have multiple values.
func (t *Txn) Get(db *DB, key []byte) ([]byte, error) {
	if db.allowDup {
		return nil, fmt.Errorf("Get is not valid on an AllowDup database; use a Cursor")
	}
	b, err := t.bucket(db)
	if err != nil {
		return nil, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, types.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Del removes a key. In a non-dup database, value must be nil. In an
// AllowDup database, value identifies which specific posting to remove; if
// value is nil every posting for the logical key is removed.
func (t *Txn) Del(db *DB, key, value []byte) error {
	b, err := t.bucket(db)
	if err != nil {
		return err
	}
	if !db.allowDup {
		return b.Delete(key)
	}
	if value != nil {
		return b.Delete(db.physicalKey(key, value))
	}
	// remove every posting with this logical key prefix.
	c := b.Cursor()
	for k, _ := c.Seek(key); k != nil; k, _ = c.Next() {
		logicalKey, _ := db.splitPhysicalKey(k)
		if !equalBytes(logicalKey, key) {
			break
		}
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of physical entries in db.
func (t *Txn) Count(db *DB) (int, error) {
	b, err := t.bucket(db)
	if err != nil {
		return 0, err
	}
	return b.Stats().KeyN, nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
