package operator

import (
	"fmt"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/expr"
	"github.com/cuemby/weir/pkg/types"
)

// ProductFactory builds an equi-join operator between two input ports.
// Range joins are out of scope here; express them as a WHERE downstream of
// an unconditional cross-product instead.
type ProductFactory struct {
	LeftKeys  []expr.Expression
	RightKeys []expr.Expression
}

func (f *ProductFactory) InputPorts() []dag.PortHandle  { return twoPorts() }
func (f *ProductFactory) OutputPorts() []dag.PortHandle { return singlePort() }

func (f *ProductFactory) OutputSchema(port dag.PortHandle, in map[dag.PortHandle]types.Schema) (types.Schema, error) {
	left, ok := in[PortLeft]
	if !ok {
		return types.Schema{}, fmt.Errorf("%w: product has no left input schema", types.ErrSchemaMismatch)
	}
	right, ok := in[PortRight]
	if !ok {
		return types.Schema{}, fmt.Errorf("%w: product has no right input schema", types.ErrSchemaMismatch)
	}
	if len(f.LeftKeys) != len(f.RightKeys) {
		return types.Schema{}, fmt.Errorf("product: %d left join keys but %d right join keys", len(f.LeftKeys), len(f.RightKeys))
	}
	for i, k := range f.LeftKeys {
		if _, err := k.GetType(left); err != nil {
			return types.Schema{}, fmt.Errorf("left join key %d: %w", i, err)
		}
	}
	for i, k := range f.RightKeys {
		if _, err := k.GetType(right); err != nil {
			return types.Schema{}, fmt.Errorf("right join key %d: %w", i, err)
		}
	}
	fields := make([]types.FieldDefinition, 0, len(left.Fields)+len(right.Fields))
	fields = append(fields, left.Fields...)
	fields = append(fields, right.Fields...)
	return types.Schema{Fields: fields}, nil
}

func (f *ProductFactory) Build(in, out map[dag.PortHandle]types.Schema) (dag.Processor, error) {
	return &Product{
		leftKeys:  f.LeftKeys,
		rightKeys: f.RightKeys,
		leftSchema: in[PortLeft], rightSchema: in[PortRight],
		left:  make(map[string][]types.Record),
		right: make(map[string][]types.Record),
	}, nil
}

// Product is a stateful equi-join: one side's lookup table, keyed by join
// key, per input port.
type Product struct {
	leftKeys, rightKeys     []expr.Expression
	leftSchema, rightSchema types.Schema
	left, right             map[string][]types.Record
}

func (p *Product) keyOf(keys []expr.Expression, r types.Record, schema types.Schema) (string, error) {
	values := make([]types.Field, len(keys))
	for i, k := range keys {
		v, err := k.Evaluate(r, schema)
		if err != nil {
			return "", err
		}
		values[i] = v
	}
	return string(types.EncodeComposite(values)), nil
}

func combine(left, right types.Record) types.Record {
	values := make([]types.Field, 0, len(left.Values)+len(right.Values))
	values = append(values, left.Values...)
	values = append(values, right.Values...)
	return types.Record{Values: values}
}

func removeRecord(list []types.Record, r types.Record) []types.Record {
	for i, existing := range list {
		if existing.Equal(r) {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (p *Product) insertSide(fromPort dag.PortHandle, r types.Record, fw dag.ProcessorForwarder) error {
	isLeft := fromPort == PortLeft
	keys, schema, own, opposite := p.leftKeys, p.leftSchema, p.left, p.right
	if !isLeft {
		keys, schema, own, opposite = p.rightKeys, p.rightSchema, p.right, p.left
	}
	key, err := p.keyOf(keys, r, schema)
	if err != nil {
		return err
	}
	for _, match := range opposite[key] {
		var out types.Record
		if isLeft {
			out = combine(r, match)
		} else {
			out = combine(match, r)
		}
		if err := fw.Send(PortDefault, types.Insert(out)); err != nil {
			return err
		}
	}
	own[key] = append(own[key], r)
	return nil
}

func (p *Product) deleteSide(fromPort dag.PortHandle, r types.Record, fw dag.ProcessorForwarder) error {
	isLeft := fromPort == PortLeft
	keys, schema, own, opposite := p.leftKeys, p.leftSchema, p.left, p.right
	if !isLeft {
		keys, schema, own, opposite = p.rightKeys, p.rightSchema, p.right, p.left
	}
	key, err := p.keyOf(keys, r, schema)
	if err != nil {
		return err
	}
	for _, match := range opposite[key] {
		var out types.Record
		if isLeft {
			out = combine(r, match)
		} else {
			out = combine(match, r)
		}
		if err := fw.Send(PortDefault, types.Delete(out)); err != nil {
			return err
		}
	}
	own[key] = removeRecord(own[key], r)
	return nil
}

func (p *Product) Process(fromPort dag.PortHandle, op types.Operation, fw dag.ProcessorForwarder) error {
	switch op.Type {
	case types.OpInsert:
		return p.insertSide(fromPort, *op.New, fw)
	case types.OpDelete:
		return p.deleteSide(fromPort, *op.Old, fw)
	case types.OpUpdate:
		if err := p.deleteSide(fromPort, *op.Old, fw); err != nil {
			return err
		}
		return p.insertSide(fromPort, *op.New, fw)
	case types.OpBatchInsert:
		for _, r := range op.NewBatch {
			if err := p.insertSide(fromPort, r, fw); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("product: unsupported operation type %v", op.Type)
	}
}

func (p *Product) Commit(epoch types.Epoch) error { return nil }
func (p *Product) OnTerminate() error              { return nil }
