package sql

import (
	"testing"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/types"
	"github.com/stretchr/testify/require"
)

const testPort dag.PortHandle = 0

type fakeSource struct{}

func (fakeSource) CanStartFrom(epoch types.Epoch) (bool, error) { return false, nil }
func (fakeSource) Run(fw dag.SourceForwarder, resumeFrom *types.Epoch) error { return nil }

type fakeSourceFactory struct{ schema types.Schema }

func (f *fakeSourceFactory) OutputPorts() []dag.PortHandle { return []dag.PortHandle{testPort} }
func (f *fakeSourceFactory) OutputSchema(port dag.PortHandle) (types.Schema, error) {
	return f.schema, nil
}
func (f *fakeSourceFactory) Build(outputSchemas map[dag.PortHandle]types.Schema) (dag.Source, error) {
	return fakeSource{}, nil
}

func ordersSchema() types.Schema {
	return types.Schema{Fields: []types.FieldDefinition{
		{Name: "id", Type: types.FieldTypeInt},
		{Name: "amount", Type: types.FieldTypeFloat},
		{Name: "category", Type: types.FieldTypeString},
		{Name: "customer_id", Type: types.FieldTypeInt},
		{Name: "ts", Type: types.FieldTypeTimestamp},
	}}
}

func customersSchema() types.Schema {
	return types.Schema{Fields: []types.FieldDefinition{
		{Name: "id", Type: types.FieldTypeInt},
		{Name: "name", Type: types.FieldTypeString},
	}}
}

// bindings returns a fresh Dag with "orders" and "customers" registered as
// source nodes, plus the SourceBinding map Plan needs to resolve FROM
// clauses against them.
func bindings(t *testing.T) (*dag.Dag, map[string]SourceBinding) {
	t.Helper()
	d := dag.New()

	ordersFactory := &fakeSourceFactory{schema: ordersSchema()}
	require.NoError(t, d.AddSource("orders", ordersFactory))
	customersFactory := &fakeSourceFactory{schema: customersSchema()}
	require.NoError(t, d.AddSource("customers", customersFactory))

	return d, map[string]SourceBinding{
		"orders":    {Node: "orders", Port: testPort, Schema: ordersSchema()},
		"customers": {Node: "customers", Port: testPort, Schema: customersSchema()},
	}
}

func fieldNames(s types.Schema) []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

func TestPlanSimpleSelectWhere(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT id, amount FROM orders WHERE amount > 10")
	require.NoError(t, err)

	_, _, schema, err := Plan(d, q, src, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "amount"}, fieldNames(schema))
	require.Equal(t, types.FieldTypeInt, schema.Fields[0].Type)
	require.Equal(t, types.FieldTypeFloat, schema.Fields[1].Type)
}

func TestPlanStarSelect(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT * FROM orders")
	require.NoError(t, err)

	_, _, schema, err := Plan(d, q, src, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "amount", "category", "customer_id", "ts"}, fieldNames(schema))
}

func TestPlanGroupByAggregationWithHaving(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT category, SUM(amount) AS total FROM orders GROUP BY category HAVING SUM(amount) > 100")
	require.NoError(t, err)

	_, _, schema, err := Plan(d, q, src, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"category", "total"}, fieldNames(schema))
	require.Equal(t, []int{0}, schema.PrimaryIndex)
}

func TestPlanGroupByWithoutMatchingProjectionHasNoPrimaryIndex(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT COUNT(*) AS n FROM orders GROUP BY category")
	require.NoError(t, err)

	_, _, schema, err := Plan(d, q, src, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"n"}, fieldNames(schema))
	require.Empty(t, schema.PrimaryIndex)
}

func TestPlanJoinOnEquality(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT o.id, c.name FROM orders o JOIN customers c ON o.customer_id = c.id")
	require.NoError(t, err)

	_, _, schema, err := Plan(d, q, src, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, fieldNames(schema))
}

func TestPlanUnion(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT id FROM orders UNION SELECT id FROM customers")
	require.NoError(t, err)

	_, _, schema, err := Plan(d, q, src, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, fieldNames(schema))
}

func TestPlanUnionAll(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT id FROM orders UNION ALL SELECT id FROM customers")
	require.NoError(t, err)

	_, _, schema, err := Plan(d, q, src, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, fieldNames(schema))
}

func TestPlanTumbleWindow(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT id, window_start FROM TUMBLE(orders, ts, '1m')")
	require.NoError(t, err)

	_, _, schema, err := Plan(d, q, src, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "window_start"}, fieldNames(schema))
}

func TestPlanHopWindow(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT id FROM HOP(orders, ts, '10s', '30s')")
	require.NoError(t, err)

	_, _, schema, err := Plan(d, q, src, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, fieldNames(schema))
}

func TestPlanCaseAndScalarFunction(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT CASE WHEN amount > 100 THEN 'big' ELSE 'small' END AS bucket, ROUND(amount) AS rounded FROM orders")
	require.NoError(t, err)

	_, _, schema, err := Plan(d, q, src, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"bucket", "rounded"}, fieldNames(schema))
	require.Equal(t, types.FieldTypeString, schema.Fields[0].Type)
}

func TestPlanCast(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT CAST(amount AS INT) AS whole FROM orders")
	require.NoError(t, err)

	_, _, schema, err := Plan(d, q, src, nil)
	require.NoError(t, err)
	require.Equal(t, types.FieldTypeInt, schema.Fields[0].Type)
}

func TestPlanUnknownTableErrors(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT id FROM widgets")
	require.NoError(t, err)

	_, _, _, err = Plan(d, q, src, nil)
	require.Error(t, err)
}

func TestPlanJoinWithOrConditionErrors(t *testing.T) {
	d, src := bindings(t)
	q, err := Parse("SELECT o.id FROM orders o JOIN customers c ON o.customer_id = c.id OR o.id = c.id")
	require.NoError(t, err)

	_, _, _, err = Plan(d, q, src, nil)
	require.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("DROP TABLE orders")
	require.Error(t, err)
}
