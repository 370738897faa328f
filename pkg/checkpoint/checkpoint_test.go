package checkpoint

import (
	"context"
	"testing"

	"github.com/cuemby/weir/pkg/types"
	"github.com/stretchr/testify/require"
)

func newLocalStore(t *testing.T) *LocalObjectStore {
	t.Helper()
	s, err := NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalObjectStoreRoundTrip(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a/b", []byte("hello")))
	got, err := store.Get(ctx, "a/b")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	require.NoError(t, store.Put(ctx, "a/c", []byte("world")))
	keys, err := store.List(ctx, "a/")
	require.NoError(t, err)
	require.Equal(t, []string{"a/b", "a/c"}, keys)
}

func TestLogStoreRejectsNonContiguousAppend(t *testing.T) {
	store := newLocalStore(t)
	log := NewLogStore(store, "orders")
	ctx := context.Background()

	entry0 := LogEntry{StartOffset: 0, Ops: []types.Operation{
		types.Insert(types.Record{Values: []types.Field{types.UIntField(1)}}),
	}}
	require.NoError(t, log.Append(ctx, entry0))

	bad := LogEntry{StartOffset: 5, Ops: []types.Operation{
		types.Insert(types.Record{Values: []types.Field{types.UIntField(2)}}),
	}}
	err := log.Append(ctx, bad)
	require.Error(t, err)

	entry1 := LogEntry{StartOffset: 1, Ops: []types.Operation{
		types.Insert(types.Record{Values: []types.Field{types.UIntField(2)}}),
		types.Insert(types.Record{Values: []types.Field{types.UIntField(3)}}),
	}}
	require.NoError(t, log.Append(ctx, entry1))

	entries, err := log.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(0), entries[0].StartOffset)
	require.Equal(t, uint64(1), entries[1].StartOffset)
	require.Equal(t, uint64(3), entries[1].EndOffset())
}

func TestEntryKeyNaming(t *testing.T) {
	key := entryKey("orders", 0, 3)
	require.Equal(t, "log/orders/00000000000000000000-00000000000000000003", key)
	start, end, ok := parseEntryKey(key)
	require.True(t, ok)
	require.Equal(t, uint64(0), start)
	require.Equal(t, uint64(3), end)
}

func TestStoreRecordCommitAndLastCommittedEpoch(t *testing.T) {
	store := newLocalStore(t)
	cp := NewStore(store)

	_, ok, err := cp.LastCommittedEpoch("pipeline")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cp.RecordCommit("pipeline", 7, nil))

	epoch, ok, err := cp.LastCommittedEpoch("pipeline")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.Epoch(7), epoch)

	// A fresh Store reading the same backing object store sees it too.
	cp2 := NewStore(store)
	epoch2, ok2, err := cp2.LastCommittedEpoch("pipeline")
	require.NoError(t, err)
	require.True(t, ok2)
	require.Equal(t, types.Epoch(7), epoch2)
}

func TestStoreGenerationDistinguishesWriters(t *testing.T) {
	store := newLocalStore(t)
	cp := NewStore(store)

	_, ok := cp.Generation("pipeline")
	require.False(t, ok, "no generation before any commit is read or written")

	require.NoError(t, cp.RecordCommit("pipeline", 1, nil))
	gen1, ok := cp.Generation("pipeline")
	require.True(t, ok)
	require.NotEmpty(t, gen1)

	// A second Store instance (a separate process run) mints its own
	// generation and, once it writes, stamps that onto the same pipeline's
	// checkpoint rather than reusing the first Store's.
	cp2 := NewStore(store)
	require.NoError(t, cp2.RecordCommit("pipeline", 2, nil))
	gen2, ok := cp2.Generation("pipeline")
	require.True(t, ok)
	require.NotEqual(t, gen1, gen2)
}
