package cache

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/weir/pkg/kvstore"
	"github.com/cuemby/weir/pkg/types"
	"github.com/stretchr/testify/require"
)

func userSchema() types.Schema {
	return types.Schema{
		ID:      "users",
		Version: 1,
		Fields: []types.FieldDefinition{
			{Name: "id", Type: types.FieldTypeUInt},
			{Name: "name", Type: types.FieldTypeString},
			{Name: "bio", Type: types.FieldTypeText, Nullable: true},
		},
		PrimaryIndex: []int{0},
	}
}

func openTestCache(t *testing.T, indexes []IndexDef, cfg Config) *Cache {
	t.Helper()
	dir := t.TempDir()
	env, err := kvstore.OpenEnv(filepath.Join(dir, "cache.db"), kvstore.DefaultEnvOptions())
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	c, err := Open(env, "users", userSchema(), indexes, cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func userRecord(id uint64, name, bio string) types.Record {
	return types.Record{Values: []types.Field{
		types.UIntField(id),
		types.StringField(name),
		types.TextField(bio),
	}}
}

// P2: secondary index entries stay consistent with the record they derive
// from across insert, update and delete.
func TestIndexConsistencyAcrossLifecycle(t *testing.T) {
	nameIndex := IndexDef{Kind: SortedInverted, FieldIndices: []int{1}}
	c := openTestCache(t, []IndexDef{nameIndex}, Config{})

	_, err := c.Insert(userRecord(1, "alice", "likes go"))
	require.NoError(t, err)

	ro, err := kvstore.BeginRO(c.RecordEnv())
	require.NoError(t, err)
	cur, err := kvstore.NewCursor(ro, c.IndexDB(0))
	require.NoError(t, err)
	key := types.EncodeComposite([]types.Field{types.StringField("alice")})
	require.True(t, cur.SeekExact(key))
	require.NoError(t, ro.Abort())

	// updating the name must move the posting to the new key and remove it
	// from the old one.
	_, err = c.Insert(userRecord(1, "alicia", "likes go"))
	require.NoError(t, err)

	ro2, err := kvstore.BeginRO(c.RecordEnv())
	require.NoError(t, err)
	cur2, err := kvstore.NewCursor(ro2, c.IndexDB(0))
	require.NoError(t, err)
	require.False(t, cur2.SeekExact(key), "old index posting must be gone after rename")
	newKey := types.EncodeComposite([]types.Field{types.StringField("alicia")})
	require.True(t, cur2.SeekExact(newKey))
	require.NoError(t, ro2.Abort())

	// deleting the record must remove the remaining posting.
	_, err = c.Delete([]types.Field{types.UIntField(1)})
	require.NoError(t, err)

	ro3, err := kvstore.BeginRO(c.RecordEnv())
	require.NoError(t, err)
	cur3, err := kvstore.NewCursor(ro3, c.IndexDB(0))
	require.NoError(t, err)
	require.False(t, cur3.SeekExact(newKey))
	require.NoError(t, ro3.Abort())
}

// P3 / P7: reinserting a record under the same primary key after a delete
// reuses a fresh id lineage cleanly and is idempotent in its externally
// visible effect (one live record, version reset to 1).
func TestReinsertAfterDeleteIsIdempotent(t *testing.T) {
	c := openTestCache(t, nil, Config{})

	res1, err := c.Insert(userRecord(7, "bob", ""))
	require.NoError(t, err)
	require.Equal(t, Inserted, res1.Kind)
	require.Equal(t, uint64(1), res1.NewMeta.Version)

	_, err = c.Delete([]types.Field{types.UIntField(7)})
	require.NoError(t, err)

	_, _, err = c.Get([]types.Field{types.UIntField(7)})
	require.ErrorIs(t, err, types.ErrNotFound)

	res2, err := c.Insert(userRecord(7, "bob", "reborn"))
	require.NoError(t, err)
	require.Equal(t, Inserted, res2.Kind)
	require.Equal(t, uint64(1), res2.NewMeta.Version)

	record, meta, err := c.Get([]types.Field{types.UIntField(7)})
	require.NoError(t, err)
	require.Equal(t, "reborn", record.Values[2].StrVal)
	require.Equal(t, uint64(1), meta.Version)
}

func TestUpdateBumpsVersion(t *testing.T) {
	c := openTestCache(t, nil, Config{})

	res1, err := c.Insert(userRecord(3, "carol", "v1"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), res1.NewMeta.Version)

	res2, err := c.Insert(userRecord(3, "carol", "v2"))
	require.NoError(t, err)
	require.Equal(t, Updated, res2.Kind)
	require.Equal(t, uint64(1), res2.OldMeta.Version)
	require.Equal(t, uint64(2), res2.NewMeta.Version)
}

// Full-text scenario: a bio field indexed as FullText is queryable by any
// one of its terms, and an update that drops a term removes its posting.
func TestFullTextIndexTermPostings(t *testing.T) {
	bioIndex := IndexDef{Kind: FullText, FieldIndices: []int{2}}
	c := openTestCache(t, []IndexDef{bioIndex}, Config{})

	_, err := c.Insert(userRecord(1, "dave", "Loves Go and distributed systems."))
	require.NoError(t, err)

	ro, err := kvstore.BeginRO(c.RecordEnv())
	require.NoError(t, err)
	cur, err := kvstore.NewCursor(ro, c.IndexDB(0))
	require.NoError(t, err)
	require.True(t, cur.SeekExact([]byte("go")))
	require.True(t, cur.SeekExact([]byte("distributed")))
	require.False(t, cur.SeekExact([]byte("rust")))
	require.NoError(t, ro.Abort())

	_, err = c.Insert(userRecord(1, "dave", "Loves Rust now."))
	require.NoError(t, err)

	ro2, err := kvstore.BeginRO(c.RecordEnv())
	require.NoError(t, err)
	cur2, err := kvstore.NewCursor(ro2, c.IndexDB(0))
	require.NoError(t, err)
	require.False(t, cur2.SeekExact([]byte("go")), "stale term posting must be removed on update")
	require.True(t, cur2.SeekExact([]byte("rust")))
	require.NoError(t, ro2.Abort())
}

func TestAsyncIndexingWaitUntilCatchUp(t *testing.T) {
	nameIndex := IndexDef{Kind: SortedInverted, FieldIndices: []int{1}}
	c := openTestCache(t, []IndexDef{nameIndex}, Config{AsyncIndexing: true})

	_, err := c.Insert(userRecord(1, "erin", ""))
	require.NoError(t, err)
	require.NoError(t, c.Commit())

	ro, err := kvstore.BeginRO(c.RecordEnv())
	require.NoError(t, err)
	cur, err := kvstore.NewCursor(ro, c.IndexDB(0))
	require.NoError(t, err)
	key := types.EncodeComposite([]types.Field{types.StringField("erin")})
	require.True(t, cur.SeekExact(key))
	require.NoError(t, ro.Abort())
}

func TestDeleteNotFound(t *testing.T) {
	c := openTestCache(t, nil, Config{})
	_, err := c.Delete([]types.Field{types.UIntField(99)})
	require.ErrorIs(t, err, types.ErrNotFound)
}
