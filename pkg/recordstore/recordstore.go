// Package recordstore is a helper for index tables that associate encoded
// keys with monotonically-assigned record ids, and stores the id-keyed
// serialized record bytes. It is the "record database" primitive that
// pkg/cache builds its primary + secondary index cache on top of.
package recordstore

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/weir/pkg/kvstore"
	"github.com/cuemby/weir/pkg/types"
)

// metaNextIDKey is a reserved key in the records database holding the
// monotonic id counter. It can never collide with a real record id key
// because record keys are always exactly 8 bytes and this key is longer.
var metaNextIDKey = []byte("__weir_recordstore_next_id__")

// Store is a record_id:u64 -> serialized-record-bytes mapping, plus the
// monotonic counter that assigns fresh ids.
type Store struct {
	db *kvstore.DB
}

// Open creates or opens the named records database within env.
func Open(env *kvstore.Env, dbName string) (*Store, error) {
	db, err := kvstore.CreateOrOpenDB(env, dbName, kvstore.DBOptions{})
	if err != nil {
		return nil, fmt.Errorf("open record store %s: %w", dbName, err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying kvstore database, for callers (pkg/query) that
// need to scan record ids directly rather than through id-keyed Get/Delete.
func (s *Store) DB() *kvstore.DB { return s.db }

// EncodeID returns the 8-byte big-endian physical key for a record id.
func EncodeID(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// DecodeID parses an 8-byte big-endian record id key.
func DecodeID(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

// NextID allocates a fresh monotonic record id within tx, persisting the
// incremented counter so ids are never reused even after a restart.
func (s *Store) NextID(tx *kvstore.Txn) (uint64, error) {
	current := uint64(0)
	raw, err := tx.Get(s.db, metaNextIDKey)
	if err == nil {
		current = binary.BigEndian.Uint64(raw)
	} else if err != types.ErrNotFound {
		return 0, err
	}
	next := current + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := tx.Put(s.db, metaNextIDKey, buf, kvstore.PutOptions{}); err != nil {
		return 0, err
	}
	return next, nil
}

// Put stores the serialized record bytes at id.
func (s *Store) Put(tx *kvstore.Txn, id uint64, value []byte) error {
	return tx.Put(s.db, EncodeID(id), value, kvstore.PutOptions{})
}

// Get reads the serialized record bytes at id.
func (s *Store) Get(tx *kvstore.Txn, id uint64) ([]byte, error) {
	return tx.Get(s.db, EncodeID(id))
}

// Delete removes the record at id.
func (s *Store) Delete(tx *kvstore.Txn, id uint64) error {
	return tx.Del(s.db, EncodeID(id), nil)
}

// Count returns the number of stored records (the meta counter key is
// excluded since it never collides with an 8-byte id key but is still
// present in the bucket; callers that need an exact live-record count
// should track it themselves, e.g. pkg/cache's CacheRecordsTotal gauge).
func (s *Store) Count(tx *kvstore.Txn) (int, error) {
	n, err := tx.Count(s.db)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Get(s.db, metaNextIDKey); err == nil {
		n--
	}
	return n, nil
}
