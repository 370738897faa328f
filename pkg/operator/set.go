package operator

import (
	"fmt"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/types"
)

// SetMode tags which set operation a Set node computes.
type SetMode int

const (
	SetUnionAll SetMode = iota
	SetUnion
)

// SetFactory builds a two-input set operator: UNION ALL (stateless
// pass-through on both ports) or UNION (deduplicated by full-row identity
// via a counting multiset; see DESIGN.md for why this is a deterministic
// counter rather than a probabilistic Bloom filter).
type SetFactory struct {
	Mode SetMode
}

func (f *SetFactory) InputPorts() []dag.PortHandle  { return twoPorts() }
func (f *SetFactory) OutputPorts() []dag.PortHandle { return singlePort() }

func (f *SetFactory) OutputSchema(port dag.PortHandle, in map[dag.PortHandle]types.Schema) (types.Schema, error) {
	left, ok := in[PortLeft]
	if !ok {
		return types.Schema{}, fmt.Errorf("%w: set has no left input schema", types.ErrSchemaMismatch)
	}
	right, ok := in[PortRight]
	if !ok {
		return types.Schema{}, fmt.Errorf("%w: set has no right input schema", types.ErrSchemaMismatch)
	}
	if len(left.Fields) != len(right.Fields) {
		return types.Schema{}, fmt.Errorf("%w: set operands have %d and %d columns", types.ErrSchemaMismatch, len(left.Fields), len(right.Fields))
	}
	for i := range left.Fields {
		if left.Fields[i].Type != right.Fields[i].Type {
			return types.Schema{}, fmt.Errorf("%w: set column %d types differ (%s vs %s)",
				types.ErrSchemaMismatch, i, left.Fields[i].Type, right.Fields[i].Type)
		}
	}
	return left, nil
}

func (f *SetFactory) Build(in, out map[dag.PortHandle]types.Schema) (dag.Processor, error) {
	return &Set{mode: f.Mode, counts: make(map[string]int)}, nil
}

// Set implements UNION ALL / UNION across two input ports.
type Set struct {
	mode   SetMode
	counts map[string]int
}

func (s *Set) recordKey(r types.Record) string { return string(types.EncodeComposite(r.Values)) }

func (s *Set) Process(fromPort dag.PortHandle, op types.Operation, fw dag.ProcessorForwarder) error {
	if s.mode == SetUnionAll {
		return fw.Send(PortDefault, op)
	}
	switch op.Type {
	case types.OpInsert:
		return s.insert(*op.New, fw)
	case types.OpDelete:
		return s.delete(*op.Old, fw)
	case types.OpUpdate:
		if err := s.delete(*op.Old, fw); err != nil {
			return err
		}
		return s.insert(*op.New, fw)
	case types.OpBatchInsert:
		for _, r := range op.NewBatch {
			if err := s.insert(r, fw); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("set: unsupported operation type %v", op.Type)
	}
}

func (s *Set) insert(r types.Record, fw dag.ProcessorForwarder) error {
	key := s.recordKey(r)
	s.counts[key]++
	if s.counts[key] == 1 {
		return fw.Send(PortDefault, types.Insert(r))
	}
	return nil
}

func (s *Set) delete(r types.Record, fw dag.ProcessorForwarder) error {
	key := s.recordKey(r)
	if s.counts[key] == 0 {
		return nil
	}
	s.counts[key]--
	if s.counts[key] == 0 {
		delete(s.counts, key)
		return fw.Send(PortDefault, types.Delete(r))
	}
	return nil
}

func (s *Set) Commit(epoch types.Epoch) error { return nil }
func (s *Set) OnTerminate() error              { return nil }
