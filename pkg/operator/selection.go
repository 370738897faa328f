package operator

import (
	"fmt"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/expr"
	"github.com/cuemby/weir/pkg/types"
)

// SelectionFactory builds a stateless WHERE filter.
type SelectionFactory struct {
	Predicate expr.Expression
}

func (f *SelectionFactory) InputPorts() []dag.PortHandle  { return singlePort() }
func (f *SelectionFactory) OutputPorts() []dag.PortHandle { return singlePort() }

func (f *SelectionFactory) OutputSchema(port dag.PortHandle, in map[dag.PortHandle]types.Schema) (types.Schema, error) {
	schema, ok := in[PortDefault]
	if !ok {
		return types.Schema{}, fmt.Errorf("%w: selection has no input schema", types.ErrSchemaMismatch)
	}
	if _, err := f.Predicate.GetType(schema); err != nil {
		return types.Schema{}, err
	}
	return schema, nil
}

func (f *SelectionFactory) Build(in, out map[dag.PortHandle]types.Schema) (dag.Processor, error) {
	return &Selection{predicate: f.Predicate, schema: in[PortDefault]}, nil
}

// Selection forwards operations whose record satisfies a WHERE predicate,
// decomposing Update into Insert/Delete/Update per whether the old and new
// sides pass.
type Selection struct {
	predicate expr.Expression
	schema    types.Schema
}

func (s *Selection) passes(r types.Record) (bool, error) {
	v, err := s.predicate.Evaluate(r, s.schema)
	if err != nil {
		return false, err
	}
	return !v.IsNull() && v.BoolVal, nil
}

func (s *Selection) Process(fromPort dag.PortHandle, op types.Operation, fw dag.ProcessorForwarder) error {
	switch op.Type {
	case types.OpInsert:
		ok, err := s.passes(*op.New)
		if err != nil {
			return err
		}
		if ok {
			return fw.Send(PortDefault, op)
		}
		return nil

	case types.OpDelete:
		ok, err := s.passes(*op.Old)
		if err != nil {
			return err
		}
		if ok {
			return fw.Send(PortDefault, op)
		}
		return nil

	case types.OpUpdate:
		oldPasses, err := s.passes(*op.Old)
		if err != nil {
			return err
		}
		newPasses, err := s.passes(*op.New)
		if err != nil {
			return err
		}
		switch {
		case oldPasses && newPasses:
			return fw.Send(PortDefault, op)
		case !oldPasses && newPasses:
			return fw.Send(PortDefault, types.Insert(*op.New))
		case oldPasses && !newPasses:
			return fw.Send(PortDefault, types.Delete(*op.Old))
		default:
			return nil
		}

	case types.OpBatchInsert:
		var kept []types.Record
		for _, r := range op.NewBatch {
			ok, err := s.passes(r)
			if err != nil {
				return err
			}
			if ok {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			return nil
		}
		return fw.Send(PortDefault, types.BatchInsert(kept))

	default:
		return fmt.Errorf("selection: unsupported operation type %v", op.Type)
	}
}

func (s *Selection) Commit(epoch types.Epoch) error { return nil }
func (s *Selection) OnTerminate() error              { return nil }
