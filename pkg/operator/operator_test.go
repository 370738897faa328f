package operator

import (
	"testing"
	"time"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/expr"
	"github.com/cuemby/weir/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeForwarder records every Send call so operator tests can assert on
// emitted operations without running a full executor.
type fakeForwarder struct {
	sent []types.Operation
}

func (f *fakeForwarder) Send(port dag.PortHandle, op types.Operation) error {
	f.sent = append(f.sent, op)
	return nil
}

func intSchema(names ...string) types.Schema {
	fields := make([]types.FieldDefinition, len(names))
	for i, n := range names {
		fields[i] = types.FieldDefinition{Name: n, Type: types.FieldTypeInt}
	}
	return types.Schema{Fields: fields}
}

func TestSelectionForwardsOnlyPassingInserts(t *testing.T) {
	schema := intSchema("amount")
	sel := &Selection{
		predicate: &expr.BinaryOperator{Op: expr.OpGt, Left: &expr.Column{Index: 0}, Right: &expr.Literal{Value: types.IntField(10)}},
		schema:    schema,
	}
	fw := &fakeForwarder{}

	require.NoError(t, sel.Process(0, types.Insert(types.Record{Values: []types.Field{types.IntField(5)}}), fw))
	require.NoError(t, sel.Process(0, types.Insert(types.Record{Values: []types.Field{types.IntField(50)}}), fw))

	require.Len(t, fw.sent, 1)
	require.Equal(t, types.OpInsert, fw.sent[0].Type)
	require.Equal(t, int64(50), fw.sent[0].New.Values[0].IntVal)
}

func TestSelectionUpdateDecomposesOnPartialMatch(t *testing.T) {
	schema := intSchema("amount")
	sel := &Selection{
		predicate: &expr.BinaryOperator{Op: expr.OpGt, Left: &expr.Column{Index: 0}, Right: &expr.Literal{Value: types.IntField(10)}},
		schema:    schema,
	}
	fw := &fakeForwarder{}
	op := types.Update(
		types.Record{Values: []types.Field{types.IntField(50)}},
		types.Record{Values: []types.Field{types.IntField(5)}},
	)
	require.NoError(t, sel.Process(0, op, fw))
	require.Len(t, fw.sent, 1)
	require.Equal(t, types.OpDelete, fw.sent[0].Type)
}

func TestProjectionEvaluatesExpressionsPreservingShape(t *testing.T) {
	schema := intSchema("a", "b")
	proj := &Projection{
		expressions: []expr.Expression{&expr.BinaryOperator{Op: expr.OpAdd, Left: &expr.Column{Index: 0}, Right: &expr.Column{Index: 1}}},
		inSchema:    schema,
	}
	fw := &fakeForwarder{}
	require.NoError(t, proj.Process(0, types.Insert(types.Record{Values: []types.Field{types.IntField(2), types.IntField(3)}}), fw))
	require.Len(t, fw.sent, 1)
	require.Equal(t, int64(5), fw.sent[0].New.Values[0].IntVal)
}

func newCountSumAggregation(t *testing.T) (*Aggregation, types.Schema) {
	t.Helper()
	inSchema := intSchema("customer_id", "amount")
	f := &AggregationFactory{
		GroupBy: []expr.Expression{&expr.Column{Index: 0}},
		Outputs: []AggregateSpec{
			{Fun: expr.AggregateCount, Args: nil},
			{Fun: expr.AggregateSum, Args: []expr.Expression{&expr.Column{Index: 1}}},
		},
	}
	outSchema, err := f.OutputSchema(PortDefault, map[dag.PortHandle]types.Schema{PortDefault: inSchema})
	require.NoError(t, err)
	require.Equal(t, []int{0}, outSchema.PrimaryIndex)

	proc, err := f.Build(map[dag.PortHandle]types.Schema{PortDefault: inSchema}, nil)
	require.NoError(t, err)
	return proc.(*Aggregation), inSchema
}

func TestAggregationEmitsInsertThenUpdateForSameGroup(t *testing.T) {
	agg, _ := newCountSumAggregation(t)
	fw := &fakeForwarder{}

	row := func(cust, amount int64) types.Record {
		return types.Record{Values: []types.Field{types.IntField(cust), types.IntField(amount)}}
	}

	require.NoError(t, agg.Process(0, types.Insert(row(1, 10)), fw))
	require.NoError(t, agg.Process(0, types.Insert(row(1, 20)), fw))

	require.Len(t, fw.sent, 2)
	require.Equal(t, types.OpInsert, fw.sent[0].Type)
	require.Equal(t, types.OpUpdate, fw.sent[1].Type)
	require.Equal(t, int64(30), fw.sent[1].New.Values[2].IntVal)
}

func TestAggregationEmitsDeleteWhenGroupEmptied(t *testing.T) {
	agg, _ := newCountSumAggregation(t)
	fw := &fakeForwarder{}
	row := types.Record{Values: []types.Field{types.IntField(1), types.IntField(10)}}

	require.NoError(t, agg.Process(0, types.Insert(row), fw))
	require.NoError(t, agg.Process(0, types.Delete(row), fw))

	require.Len(t, fw.sent, 2)
	require.Equal(t, types.OpDelete, fw.sent[1].Type)
}

func TestAggregationUpdateWithKeyChangeDecomposesIntoDeleteInsert(t *testing.T) {
	agg, _ := newCountSumAggregation(t)
	fw := &fakeForwarder{}
	old := types.Record{Values: []types.Field{types.IntField(1), types.IntField(10)}}
	new_ := types.Record{Values: []types.Field{types.IntField(2), types.IntField(10)}}

	require.NoError(t, agg.Process(0, types.Insert(old), fw))
	fw.sent = nil

	require.NoError(t, agg.Process(0, types.Update(old, new_), fw))
	require.Len(t, fw.sent, 2)
	require.Equal(t, types.OpDelete, fw.sent[0].Type)
	require.Equal(t, types.OpInsert, fw.sent[1].Type)
}

func TestProductEmitsOnePairPerMatch(t *testing.T) {
	p := &Product{
		leftKeys:    []expr.Expression{&expr.Column{Index: 0}},
		rightKeys:   []expr.Expression{&expr.Column{Index: 0}},
		leftSchema:  intSchema("id"),
		rightSchema: intSchema("order_customer_id", "amount"),
		left:        make(map[string][]types.Record),
		right:       make(map[string][]types.Record),
	}
	fw := &fakeForwarder{}

	require.NoError(t, p.Process(PortLeft, types.Insert(types.Record{Values: []types.Field{types.IntField(1)}}), fw))
	require.NoError(t, p.Process(PortRight, types.Insert(types.Record{Values: []types.Field{types.IntField(1), types.IntField(99)}}), fw))

	require.Len(t, fw.sent, 1)
	require.Equal(t, types.OpInsert, fw.sent[0].Type)
	require.Len(t, fw.sent[0].New.Values, 3)
}

func TestSetUnionDeduplicatesByRow(t *testing.T) {
	s := &Set{mode: SetUnion, counts: make(map[string]int)}
	fw := &fakeForwarder{}
	row := types.Record{Values: []types.Field{types.IntField(1)}}

	require.NoError(t, s.Process(PortLeft, types.Insert(row), fw))
	require.NoError(t, s.Process(PortRight, types.Insert(row), fw))

	require.Len(t, fw.sent, 1)
}

func TestSetUnionAllPassesThroughDuplicates(t *testing.T) {
	s := &Set{mode: SetUnionAll, counts: make(map[string]int)}
	fw := &fakeForwarder{}
	row := types.Record{Values: []types.Field{types.IntField(1)}}

	require.NoError(t, s.Process(PortLeft, types.Insert(row), fw))
	require.NoError(t, s.Process(PortRight, types.Insert(row), fw))

	require.Len(t, fw.sent, 2)
}

func TestWindowTumbleStampsSingleWindowWithLifetime(t *testing.T) {
	w := &Window{kind: WindowTumble, column: 0, size: time.Minute, grace: 10 * time.Second}
	fw := &fakeForwarder{}
	ts := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	row := types.Record{Values: []types.Field{types.TimestampField(ts)}}

	require.NoError(t, w.Process(PortDefault, types.Insert(row), fw))

	require.Len(t, fw.sent, 1)
	out := fw.sent[0].New
	require.Len(t, out.Values, 3)
	start := out.Values[1].TimeVal
	end := out.Values[2].TimeVal
	require.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), start)
	require.Equal(t, start.Add(time.Minute), end)
	require.NotNil(t, out.Lifetime)
	require.Equal(t, end.Add(10*time.Second), *out.Lifetime)
}

func TestWindowHopEnumeratesOverlappingWindows(t *testing.T) {
	w := &Window{kind: WindowHop, column: 0, hop: 10 * time.Second, size: 30 * time.Second}
	fw := &fakeForwarder{}
	ts := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
	row := types.Record{Values: []types.Field{types.TimestampField(ts)}}

	require.NoError(t, w.Process(PortDefault, types.Insert(row), fw))

	require.Len(t, fw.sent, 3)
	for _, op := range fw.sent {
		start := op.New.Values[1].TimeVal
		end := op.New.Values[2].TimeVal
		require.True(t, !ts.Before(start) && ts.Before(end))
	}
}
