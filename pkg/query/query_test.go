package query

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/weir/pkg/cache"
	"github.com/cuemby/weir/pkg/kvstore"
	"github.com/cuemby/weir/pkg/types"
	"github.com/stretchr/testify/require"
)

func productSchema() types.Schema {
	return types.Schema{
		ID:      "products",
		Version: 1,
		Fields: []types.FieldDefinition{
			{Name: "id", Type: types.FieldTypeUInt},
			{Name: "category", Type: types.FieldTypeString},
			{Name: "price", Type: types.FieldTypeUInt},
			{Name: "description", Type: types.FieldTypeText, Nullable: true},
		},
		PrimaryIndex: []int{0},
	}
}

func openProductCache(t *testing.T) *cache.Cache {
	t.Helper()
	dir := t.TempDir()
	env, err := kvstore.OpenEnv(filepath.Join(dir, "q.db"), kvstore.DefaultEnvOptions())
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	indexes := []cache.IndexDef{
		{Kind: cache.SortedInverted, FieldIndices: []int{1, 2}}, // category, price
		{Kind: cache.FullText, FieldIndices: []int{3}},
	}
	c, err := cache.Open(env, "products", productSchema(), indexes, cache.Config{})
	require.NoError(t, err)
	return c
}

func product(id uint64, category string, price uint64, desc string) types.Record {
	return types.Record{Values: []types.Field{
		types.UIntField(id),
		types.StringField(category),
		types.UIntField(price),
		types.TextField(desc),
	}}
}

func seedProducts(t *testing.T, c *cache.Cache) {
	t.Helper()
	rows := []types.Record{
		product(1, "books", 10, "a quick read"),
		product(2, "books", 25, "a long read"),
		product(3, "toys", 15, "fun for kids"),
		product(4, "toys", 40, "fun and loud"),
	}
	for _, r := range rows {
		_, err := c.Insert(r)
		require.NoError(t, err)
	}
}

func TestPlanChoosesIndexScanForEqualityPrefix(t *testing.T) {
	c := openProductCache(t)
	seedProducts(t, c)

	q := QueryExpression{Filter: ptr(Simple("category", EQ, types.StringField("books")))}
	plan, err := PlanQuery(c.Schema(), c.Indexes(), true, q)
	require.NoError(t, err)
	require.NotNil(t, plan.IndexScan)
	require.Equal(t, 0, plan.IndexScan.IndexNumber)

	records, err := Execute(c, plan, q)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		require.Equal(t, "books", r.Values[1].StrVal)
	}
}

func TestPlanRangeOnSecondFieldAfterEquality(t *testing.T) {
	c := openProductCache(t)
	seedProducts(t, c)

	q := QueryExpression{Filter: ptr(And(
		Simple("category", EQ, types.StringField("toys")),
		Simple("price", GT, types.UIntField(15)),
	))}
	plan, err := PlanQuery(c.Schema(), c.Indexes(), true, q)
	require.NoError(t, err)
	require.NotNil(t, plan.IndexScan)

	records, err := Execute(c, plan, q)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uint64(40), records[0].Values[2].UIntVal)
}

func TestPlanFallsBackToSeqScanWhenNoIndexQualifies(t *testing.T) {
	c := openProductCache(t)
	seedProducts(t, c)

	q := QueryExpression{Filter: ptr(Simple("price", GT, types.UIntField(0)))}
	plan, err := PlanQuery(c.Schema(), c.Indexes(), true, q)
	require.NoError(t, err)
	require.Nil(t, plan.IndexScan)
	require.NotNil(t, plan.SeqScan)

	records, err := Execute(c, plan, q)
	require.NoError(t, err)
	require.Len(t, records, 4)
}

func TestPlanNeedsIndexWhenSeqScanDisallowed(t *testing.T) {
	c := openProductCache(t)
	seedProducts(t, c)

	q := QueryExpression{Filter: ptr(Simple("price", GT, types.UIntField(0)))}
	_, err := PlanQuery(c.Schema(), c.Indexes(), false, q)
	require.ErrorIs(t, err, types.ErrNeedIndex)
}

func TestFullTextMatchesAll(t *testing.T) {
	c := openProductCache(t)
	seedProducts(t, c)

	q := QueryExpression{Filter: ptr(Simple("description", MatchesAll, types.StringField("fun loud")))}
	plan, err := PlanQuery(c.Schema(), c.Indexes(), true, q)
	require.NoError(t, err)
	require.NotNil(t, plan.IndexScan)
	require.Equal(t, 1, plan.IndexScan.IndexNumber)

	records, err := Execute(c, plan, q)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uint64(4), records[0].Values[0].UIntVal)
}

func TestLimitAndSkip(t *testing.T) {
	c := openProductCache(t)
	seedProducts(t, c)

	q := QueryExpression{Filter: ptr(Simple("category", EQ, types.StringField("books"))), Skip: 1, Limit: 1}
	plan, err := PlanQuery(c.Schema(), c.Indexes(), true, q)
	require.NoError(t, err)
	records, err := Execute(c, plan, q)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestUnknownFieldIsError(t *testing.T) {
	c := openProductCache(t)
	q := QueryExpression{Filter: ptr(Simple("nope", EQ, types.UIntField(1)))}
	_, err := PlanQuery(c.Schema(), c.Indexes(), true, q)
	require.ErrorIs(t, err, types.ErrFieldNotFound)
}

func ptr(f FilterExpression) *FilterExpression { return &f }
