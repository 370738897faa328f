// Package cachesink adapts a pkg/cache Cache into a pkg/dag Sink, so a
// pipeline's endpoint materialization is just another DAG node: inserts and
// deletes arriving on the sink's one input port are applied straight
// through to the cache. An update that changes the primary key deletes the
// old key and then inserts the new row; an update that keeps the key is a
// single insert, which replaces the cached row in place.
package cachesink

import (
	"fmt"

	"github.com/cuemby/weir/pkg/cache"
	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/operator"
	"github.com/cuemby/weir/pkg/types"
)

// Factory builds a Sink around an already-open Cache.
type Factory struct {
	Cache *cache.Cache
}

func (f *Factory) InputPorts() []dag.PortHandle { return []dag.PortHandle{operator.PortDefault} }

// Prepare checks that the upstream schema matches the cache's own schema,
// field for field: a cache opened against one schema can't materialize
// rows shaped for another.
func (f *Factory) Prepare(inputSchemas map[dag.PortHandle]types.Schema) error {
	in, ok := inputSchemas[operator.PortDefault]
	if !ok {
		return fmt.Errorf("%w: cache sink has no input schema", types.ErrSchemaMismatch)
	}
	want := f.Cache.Schema()
	if len(in.Fields) != len(want.Fields) {
		return fmt.Errorf("%w: cache %s expects %d fields, got %d",
			types.ErrSchemaMismatch, f.Cache.Endpoint(), len(want.Fields), len(in.Fields))
	}
	for i, fd := range want.Fields {
		if in.Fields[i].Type != fd.Type {
			return fmt.Errorf("%w: cache %s field %d: expected %s, got %s",
				types.ErrSchemaMismatch, f.Cache.Endpoint(), i, fd.Type, in.Fields[i].Type)
		}
	}
	return nil
}

func (f *Factory) Build(inputSchemas map[dag.PortHandle]types.Schema) (dag.Sink, error) {
	return &Sink{cache: f.Cache}, nil
}

// Sink applies operations arriving on its one input port to the backing
// cache.
type Sink struct {
	cache *cache.Cache
}

func (s *Sink) Process(fromPort dag.PortHandle, op types.Operation) error {
	switch op.Type {
	case types.OpInsert:
		_, err := s.cache.Insert(*op.New)
		return err
	case types.OpDelete:
		pk := s.cache.Schema().PrimaryKeyValues(op.Old.Values)
		_, err := s.cache.Delete(pk)
		return err
	case types.OpUpdate:
		oldPK := s.cache.Schema().PrimaryKeyValues(op.Old.Values)
		newPK := s.cache.Schema().PrimaryKeyValues(op.New.Values)
		if !sameKey(oldPK, newPK) {
			if _, err := s.cache.Delete(oldPK); err != nil {
				return err
			}
		}
		_, err := s.cache.Insert(*op.New)
		return err
	case types.OpBatchInsert:
		for _, r := range op.NewBatch {
			if _, err := s.cache.Insert(r); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("cachesink: unsupported operation type %v", op.Type)
	}
}

// Commit flushes any async indexing so a checkpoint taken at epoch sees a
// cache state consistent with everything committed up to it.
func (s *Sink) Commit(epoch types.Epoch) error { return s.cache.Commit() }

func (s *Sink) OnSourceSnapshottingDone() error { return nil }

func (s *Sink) OnTerminate() error { return nil }

func sameKey(a, b []types.Field) bool {
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
