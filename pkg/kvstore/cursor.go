package kvstore

import "go.etcd.io/bbolt"

// Cursor iterates a database's entries in physical-key order. On an
// AllowDup database the logical key and value are split apart
// automatically; Read always returns the logical (key, value) pair.
type Cursor struct {
	db   *DB
	c    *bbolt.Cursor
	k, v []byte
	ok   bool
}

// NewCursor opens a cursor on db within txn.
func NewCursor(t *Txn, db *DB) (*Cursor, error) {
	b, err := t.bucket(db)
	if err != nil {
		return nil, err
	}
	return &Cursor{db: db, c: b.Cursor()}, nil
}

func (c *Cursor) set(k, v []byte) {
	if k == nil {
		c.ok = false
		c.k, c.v = nil, nil
		return
	}
	c.ok = true
	if c.db.allowDup {
		logicalKey, value := c.db.splitPhysicalKey(k)
		c.k, c.v = logicalKey, value
	} else {
		c.k, c.v = k, v
	}
}

// SeekGTE positions the cursor at the first entry whose physical key is >=
// the given logical key's encoding (for AllowDup databases this lands on
// the first posting for that key, or the next logical key if the exact key
// has no postings).
func (c *Cursor) SeekGTE(key []byte) bool {
	k, v := c.c.Seek(key)
	c.set(k, v)
	return c.ok
}

// SeekExact positions the cursor at the first entry with exactly the given
// logical key, returning false if none exists.
func (c *Cursor) SeekExact(key []byte) bool {
	if !c.SeekGTE(key) {
		return false
	}
	if !equalBytes(c.k, key) {
		c.ok = false
		return false
	}
	return true
}

// First positions the cursor at the first entry.
func (c *Cursor) First() bool {
	k, v := c.c.First()
	c.set(k, v)
	return c.ok
}

// Last positions the cursor at the last entry.
func (c *Cursor) Last() bool {
	k, v := c.c.Last()
	c.set(k, v)
	return c.ok
}

// Next advances the cursor.
func (c *Cursor) Next() bool {
	k, v := c.c.Next()
	c.set(k, v)
	return c.ok
}

// Prev moves the cursor backward.
func (c *Cursor) Prev() bool {
	k, v := c.c.Prev()
	c.set(k, v)
	return c.ok
}

// Read returns the current (logical key, value) pair. Valid only after a
// positioning call returned true.
func (c *Cursor) Read() ([]byte, []byte) {
	return c.k, c.v
}

// Valid reports whether the cursor is currently positioned on an entry.
func (c *Cursor) Valid() bool { return c.ok }
