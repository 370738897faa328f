package operator

import (
	"fmt"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/expr"
	"github.com/cuemby/weir/pkg/types"
)

// AggregateSpec names one aggregate output column: the aggregator function
// and the expressions evaluated to produce its arguments.
type AggregateSpec struct {
	Fun  expr.AggregateFunc
	Args []expr.Expression
	Name string
}

// AggregationFactory builds a GROUP BY operator. HAVING is not evaluated
// here: the SQL planner appends a separate Selection operator on this
// operator's output schema, per the planner's operator-instantiation order.
type AggregationFactory struct {
	GroupBy []expr.Expression
	Outputs []AggregateSpec
}

func (f *AggregationFactory) InputPorts() []dag.PortHandle  { return singlePort() }
func (f *AggregationFactory) OutputPorts() []dag.PortHandle { return singlePort() }

func (f *AggregationFactory) OutputSchema(port dag.PortHandle, in map[dag.PortHandle]types.Schema) (types.Schema, error) {
	inSchema, ok := in[PortDefault]
	if !ok {
		return types.Schema{}, fmt.Errorf("%w: aggregation has no input schema", types.ErrSchemaMismatch)
	}
	fields := make([]types.FieldDefinition, 0, len(f.GroupBy)+len(f.Outputs))
	primary := make([]int, 0, len(f.GroupBy))
	for i, g := range f.GroupBy {
		et, err := g.GetType(inSchema)
		if err != nil {
			return types.Schema{}, fmt.Errorf("group by column %d: %w", i, err)
		}
		fields = append(fields, types.FieldDefinition{Name: g.String(), Type: et.ReturnType, Nullable: et.Nullable})
		primary = append(primary, i)
	}
	for i, spec := range f.Outputs {
		af := &expr.AggregateFunction{Fun: spec.Fun, Args: spec.Args}
		et, err := af.GetType(inSchema)
		if err != nil {
			return types.Schema{}, fmt.Errorf("aggregate column %d: %w", i, err)
		}
		name := spec.Name
		if name == "" {
			name = af.String()
		}
		fields = append(fields, types.FieldDefinition{Name: name, Type: et.ReturnType, Nullable: et.Nullable})
	}
	return types.Schema{ID: inSchema.ID, Version: inSchema.Version, Fields: fields, PrimaryIndex: primary}, nil
}

func (f *AggregationFactory) Build(in, out map[dag.PortHandle]types.Schema) (dag.Processor, error) {
	return &Aggregation{
		groupBy:  f.GroupBy,
		outputs:  f.Outputs,
		inSchema: in[PortDefault],
		groups:   make(map[string]*aggregationGroup),
	}, nil
}

type aggregationGroup struct {
	key         []types.Field
	aggregators []Aggregator
	lastRow     types.Record
	rowCount    int
}

// Aggregation is the stateful GROUP BY operator: keyed by the tuple of
// group-by expression values, it keeps one Aggregator per output column
// per group and emits Insert/Update/Delete to keep the grouped view
// incrementally correct.
type Aggregation struct {
	groupBy  []expr.Expression
	outputs  []AggregateSpec
	inSchema types.Schema
	groups   map[string]*aggregationGroup
}

func (a *Aggregation) evalGroupKey(r types.Record) ([]types.Field, error) {
	key := make([]types.Field, len(a.groupBy))
	for i, g := range a.groupBy {
		v, err := g.Evaluate(r, a.inSchema)
		if err != nil {
			return nil, err
		}
		key[i] = v
	}
	return key, nil
}

func (a *Aggregation) keyString(key []types.Field) string { return string(types.EncodeComposite(key)) }

func (a *Aggregation) newGroup(key []types.Field) *aggregationGroup {
	aggregators := make([]Aggregator, len(a.outputs))
	for i, spec := range a.outputs {
		agg, err := NewAggregator(spec.Fun)
		if err != nil {
			// NewAggregator only fails for a fun value outside the
			// constructed enum, which OutputSchema would already have
			// rejected during planning.
			panic(err)
		}
		et, err := (&expr.AggregateFunction{Fun: spec.Fun, Args: spec.Args}).GetType(a.inSchema)
		if err != nil {
			// OutputSchema type-checked the same spec during planning.
			panic(err)
		}
		agg.Init(et.ReturnType)
		aggregators[i] = agg
	}
	return &aggregationGroup{key: key, aggregators: aggregators}
}

func (a *Aggregation) evalArgs(r types.Record, spec AggregateSpec) ([]types.Field, error) {
	args := make([]types.Field, len(spec.Args))
	for i, e := range spec.Args {
		v, err := e.Evaluate(r, a.inSchema)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (a *Aggregation) row(g *aggregationGroup, values []types.Field) types.Record {
	out := make([]types.Field, 0, len(g.key)+len(values))
	out = append(out, g.key...)
	out = append(out, values...)
	return types.Record{Values: out}
}

// applyInsert folds one record into its group, returning the group (for
// further mutation), whether the group was newly created by this call, and
// the group's aggregate values after this change.
func (a *Aggregation) applyInsert(r types.Record) (g *aggregationGroup, wasNew bool, newValues []types.Field, err error) {
	key, err := a.evalGroupKey(r)
	if err != nil {
		return nil, false, nil, err
	}
	ks := a.keyString(key)
	g, ok := a.groups[ks]
	if !ok {
		g = a.newGroup(key)
		a.groups[ks] = g
		wasNew = true
	}
	values := make([]types.Field, len(a.outputs))
	for i, spec := range a.outputs {
		args, err := a.evalArgs(r, spec)
		if err != nil {
			return nil, false, nil, err
		}
		v, err := g.aggregators[i].Insert(args)
		if err != nil {
			return nil, false, nil, err
		}
		values[i] = v
	}
	g.rowCount++
	return g, wasNew, values, nil
}

func (a *Aggregation) applyDelete(r types.Record) (g *aggregationGroup, emptied bool, newValues []types.Field, err error) {
	key, err := a.evalGroupKey(r)
	if err != nil {
		return nil, false, nil, err
	}
	ks := a.keyString(key)
	g, ok := a.groups[ks]
	if !ok {
		return nil, false, nil, fmt.Errorf("aggregation: delete for unknown group")
	}
	values := make([]types.Field, len(a.outputs))
	for i, spec := range a.outputs {
		args, err := a.evalArgs(r, spec)
		if err != nil {
			return nil, false, nil, err
		}
		v, err := g.aggregators[i].Delete(args)
		if err != nil {
			return nil, false, nil, err
		}
		values[i] = v
	}
	g.rowCount--
	if g.rowCount <= 0 {
		delete(a.groups, ks)
		emptied = true
	}
	return g, emptied, values, nil
}

func (a *Aggregation) Process(fromPort dag.PortHandle, op types.Operation, fw dag.ProcessorForwarder) error {
	switch op.Type {
	case types.OpInsert:
		g, wasNew, values, err := a.applyInsert(*op.New)
		if err != nil {
			return err
		}
		newRow := a.row(g, values)
		if wasNew {
			g.lastRow = newRow
			return fw.Send(PortDefault, types.Insert(newRow))
		}
		oldRow := g.lastRow
		g.lastRow = newRow
		return fw.Send(PortDefault, types.Update(oldRow, newRow))

	case types.OpDelete:
		g, emptied, values, err := a.applyDelete(*op.Old)
		if err != nil {
			return err
		}
		if emptied {
			oldRow := g.lastRow
			return fw.Send(PortDefault, types.Delete(oldRow))
		}
		newRow := a.row(g, values)
		oldRow := g.lastRow
		g.lastRow = newRow
		return fw.Send(PortDefault, types.Update(oldRow, newRow))

	case types.OpUpdate:
		oldKey, err := a.evalGroupKey(*op.Old)
		if err != nil {
			return err
		}
		newKey, err := a.evalGroupKey(*op.New)
		if err != nil {
			return err
		}
		if keysEqual(oldKey, newKey) {
			ks := a.keyString(oldKey)
			g, ok := a.groups[ks]
			if !ok {
				return fmt.Errorf("aggregation: update for unknown group")
			}
			values := make([]types.Field, len(a.outputs))
			for i, spec := range a.outputs {
				oldArgs, err := a.evalArgs(*op.Old, spec)
				if err != nil {
					return err
				}
				newArgs, err := a.evalArgs(*op.New, spec)
				if err != nil {
					return err
				}
				v, err := g.aggregators[i].Update(oldArgs, newArgs)
				if err != nil {
					return err
				}
				values[i] = v
			}
			newRow := a.row(g, values)
			oldRow := g.lastRow
			g.lastRow = newRow
			return fw.Send(PortDefault, types.Update(oldRow, newRow))
		}
		// Group key changed: decompose into a delete from the old group
		// and an insert into the new one.
		if err := a.Process(fromPort, types.Delete(*op.Old), fw); err != nil {
			return err
		}
		return a.Process(fromPort, types.Insert(*op.New), fw)

	case types.OpBatchInsert:
		for _, r := range op.NewBatch {
			if err := a.Process(fromPort, types.Insert(r), fw); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("aggregation: unsupported operation type %v", op.Type)
	}
}

func keysEqual(a, b []types.Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (a *Aggregation) Commit(epoch types.Epoch) error { return nil }
func (a *Aggregation) OnTerminate() error              { return nil }
