package cachesink

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/weir/pkg/cache"
	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/kvstore"
	"github.com/cuemby/weir/pkg/operator"
	"github.com/cuemby/weir/pkg/types"
	"github.com/stretchr/testify/require"
)

func ordersSchema() types.Schema {
	return types.Schema{
		ID:      "orders",
		Version: 1,
		Fields: []types.FieldDefinition{
			{Name: "id", Type: types.FieldTypeUInt},
			{Name: "customer", Type: types.FieldTypeString},
			{Name: "total", Type: types.FieldTypeFloat},
		},
		PrimaryIndex: []int{0},
	}
}

func openTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	dir := t.TempDir()
	env, err := kvstore.OpenEnv(filepath.Join(dir, "cache.db"), kvstore.DefaultEnvOptions())
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	c, err := cache.Open(env, "orders", ordersSchema(), nil, cache.Config{})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func orderRecord(id uint64, customer string, total float64) types.Record {
	return types.Record{Values: []types.Field{
		types.UIntField(id),
		types.StringField(customer),
		types.FloatField(total),
	}}
}

func TestPrepareAcceptsMatchingSchema(t *testing.T) {
	c := openTestCache(t)
	f := &Factory{Cache: c}

	err := f.Prepare(map[dag.PortHandle]types.Schema{operator.PortDefault: ordersSchema()})
	require.NoError(t, err)
}

func TestPrepareRejectsFieldCountMismatch(t *testing.T) {
	c := openTestCache(t)
	f := &Factory{Cache: c}

	bad := ordersSchema()
	bad.Fields = bad.Fields[:2]
	err := f.Prepare(map[dag.PortHandle]types.Schema{operator.PortDefault: bad})
	require.ErrorIs(t, err, types.ErrSchemaMismatch)
}

func TestPrepareRejectsFieldTypeMismatch(t *testing.T) {
	c := openTestCache(t)
	f := &Factory{Cache: c}

	bad := ordersSchema()
	bad.Fields[2].Type = types.FieldTypeString
	err := f.Prepare(map[dag.PortHandle]types.Schema{operator.PortDefault: bad})
	require.ErrorIs(t, err, types.ErrSchemaMismatch)
}

func TestSinkProcessInsertAndDelete(t *testing.T) {
	c := openTestCache(t)
	sink := &Sink{cache: c}

	require.NoError(t, sink.Process(operator.PortDefault, types.Insert(orderRecord(1, "acme", 12.5))))
	require.NoError(t, sink.Commit(types.Epoch(1)))

	rec := orderRecord(1, "acme", 12.5)
	require.NoError(t, sink.Process(operator.PortDefault, types.Delete(rec)))
	require.NoError(t, sink.Commit(types.Epoch(2)))
}

func TestSinkProcessUpdateMovingPrimaryKey(t *testing.T) {
	c := openTestCache(t)
	sink := &Sink{cache: c}

	old := orderRecord(1, "acme", 12.5)
	require.NoError(t, sink.Process(operator.PortDefault, types.Insert(old)))

	renamed := orderRecord(2, "acme", 12.5)
	require.NoError(t, sink.Process(operator.PortDefault, types.Update(old, renamed)))
	require.NoError(t, sink.Commit(types.Epoch(1)))

	_, err := c.Delete([]types.Field{types.UIntField(1)})
	require.ErrorIs(t, err, types.ErrNotFound, "old primary key must have been removed by the update")
}

func TestSinkProcessBatchInsert(t *testing.T) {
	c := openTestCache(t)
	sink := &Sink{cache: c}

	batch := []types.Record{
		orderRecord(1, "acme", 1),
		orderRecord(2, "globex", 2),
		orderRecord(3, "initech", 3),
	}
	require.NoError(t, sink.Process(operator.PortDefault, types.BatchInsert(batch)))
	require.NoError(t, sink.Commit(types.Epoch(1)))
}

func TestSameKey(t *testing.T) {
	a := []types.Field{types.UIntField(1)}
	b := []types.Field{types.UIntField(1)}
	c := []types.Field{types.UIntField(2)}

	require.True(t, sameKey(a, b))
	require.False(t, sameKey(a, c))
	require.False(t, sameKey(a, nil))
}
