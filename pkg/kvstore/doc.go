/*
Package kvstore is a thin typed layer over go.etcd.io/bbolt, a memory-mapped
ordered key/value store, providing named databases per environment, read and
write transactions (writers are exclusive, readers are concurrent via
bbolt's MVCC snapshotting), cursors with seek/first/last/next/prev, a
duplicate-key emulation for secondary indexes, and per-database custom key
comparators.

This plays the role the original system gives to an LMDB/MDBX environment;
bbolt differs from LMDB in two ways this package works around:

  - bbolt has no native support for duplicate keys (LMDB's MDB_DUPSORT).
    DBOptions.AllowDup emulates it by appending the value to the physical
    key (key || value, the value being a fixed-width 8-byte record id),
    so multiple postings for the same logical
    key become distinct, contiguous bbolt keys that a cursor still visits
    in the right order.
  - bbolt's btree is always byte-lexicographic; it has no hook for a custom
    comparator callback. A DBOptions.Comparator is still accepted and
    stored per-database for a caller that needs an ordering other than
    plain byte-lexicographic — pkg/cache does not install one today, since
    its secondary indexes rely entirely on types.EncodeComposite producing
    an order-preserving byte encoding, so DB.Compare currently only falls
    through to bytes.Compare in production. Whatever the comparator, it
    must never panic: see Compare, which recovers and degrades to Equal on
    a failing comparator, matching the required "deserialization failure
    inside a comparator must degrade to Equal and log, not abort"
    discipline.
*/
package kvstore
