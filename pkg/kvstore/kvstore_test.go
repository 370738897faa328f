package kvstore

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestEnv(t *testing.T) *Env {
	t.Helper()
	dir := t.TempDir()
	env, err := OpenEnv(filepath.Join(dir, "test.db"), DefaultEnvOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestPutGetRoundTrip(t *testing.T) {
	env := openTestEnv(t)
	db, err := CreateOrOpenDB(env, "records", DBOptions{})
	require.NoError(t, err)

	tx, err := BeginRW(env)
	require.NoError(t, err)
	require.NoError(t, tx.Put(db, []byte("k1"), []byte("v1"), PutOptions{}))
	require.NoError(t, tx.Commit())

	ro, err := BeginRO(env)
	require.NoError(t, err)
	defer ro.Abort()
	v, err := ro.Get(db, []byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
}

func TestGetNotFound(t *testing.T) {
	env := openTestEnv(t)
	db, err := CreateOrOpenDB(env, "records", DBOptions{})
	require.NoError(t, err)

	ro, err := BeginRO(env)
	require.NoError(t, err)
	defer ro.Abort()
	_, err = ro.Get(db, []byte("missing"))
	require.Error(t, err)
}

func TestAllowDupMultiplePostings(t *testing.T) {
	env := openTestEnv(t)
	db, err := CreateOrOpenDB(env, "idx", DBOptions{AllowDup: true})
	require.NoError(t, err)

	tx, err := BeginRW(env)
	require.NoError(t, err)
	id1 := make([]byte, 8)
	binary.BigEndian.PutUint64(id1, 1)
	id2 := make([]byte, 8)
	binary.BigEndian.PutUint64(id2, 2)

	require.NoError(t, tx.Put(db, []byte("term"), id1, PutOptions{}))
	require.NoError(t, tx.Put(db, []byte("term"), id2, PutOptions{}))
	require.NoError(t, tx.Commit())

	ro, err := BeginRO(env)
	require.NoError(t, err)
	defer ro.Abort()

	c, err := NewCursor(ro, db)
	require.NoError(t, err)
	require.True(t, c.SeekGTE([]byte("term")))

	var got [][]byte
	for c.Valid() {
		k, v := c.Read()
		require.Equal(t, []byte("term"), k)
		vc := make([]byte, len(v))
		copy(vc, v)
		got = append(got, vc)
		c.Next()
	}
	require.Len(t, got, 2)
	require.Equal(t, id1, got[0])
	require.Equal(t, id2, got[1])
}

func TestDelRemovesSpecificPosting(t *testing.T) {
	env := openTestEnv(t)
	db, err := CreateOrOpenDB(env, "idx", DBOptions{AllowDup: true})
	require.NoError(t, err)

	tx, err := BeginRW(env)
	require.NoError(t, err)
	id1 := make([]byte, 8)
	binary.BigEndian.PutUint64(id1, 1)
	id2 := make([]byte, 8)
	binary.BigEndian.PutUint64(id2, 2)
	require.NoError(t, tx.Put(db, []byte("term"), id1, PutOptions{}))
	require.NoError(t, tx.Put(db, []byte("term"), id2, PutOptions{}))
	require.NoError(t, tx.Commit())

	tx2, err := BeginRW(env)
	require.NoError(t, err)
	require.NoError(t, tx2.Del(db, []byte("term"), id1))
	require.NoError(t, tx2.Commit())

	ro, err := BeginRO(env)
	require.NoError(t, err)
	defer ro.Abort()
	c, err := NewCursor(ro, db)
	require.NoError(t, err)
	require.True(t, c.SeekGTE([]byte("term")))
	_, v := c.Read()
	require.Equal(t, id2, v)
	require.False(t, c.Next())
}

func TestComparatorDegradesToEqualOnPanic(t *testing.T) {
	env := openTestEnv(t)
	db, err := CreateOrOpenDB(env, "weird", DBOptions{
		Comparator: func(a, b []byte) int {
			panic("boom")
		},
	})
	require.NoError(t, err)
	require.Equal(t, 0, db.Compare([]byte("a"), []byte("b")))
}

func TestNoOverwrite(t *testing.T) {
	env := openTestEnv(t)
	db, err := CreateOrOpenDB(env, "records", DBOptions{})
	require.NoError(t, err)

	tx, err := BeginRW(env)
	require.NoError(t, err)
	require.NoError(t, tx.Put(db, []byte("k1"), []byte("v1"), PutOptions{}))
	err = tx.Put(db, []byte("k1"), []byte("v2"), PutOptions{NoOverwrite: true})
	require.Error(t, err)
	require.NoError(t, tx.Abort())
}
