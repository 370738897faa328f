package operator

import (
	"fmt"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/types"
)

// TableMapper maps one input record to zero or more output records,
// deterministically (same input always yields the same output rows). Table
// operators such as UNNEST or a user-defined table function implement this.
type TableMapper interface {
	Map(r types.Record) ([]types.Record, error)
	OutputSchema(in types.Schema) (types.Schema, error)
}

// TableFactory builds a generic chained table operator around a
// TableMapper; the processor lifts Map's per-record fan-out to operation
// semantics (insert<->insert, delete<->delete, update<->delete+insert,
// batch-insert<->batch).
type TableFactory struct {
	Mapper TableMapper
}

func (f *TableFactory) InputPorts() []dag.PortHandle  { return singlePort() }
func (f *TableFactory) OutputPorts() []dag.PortHandle { return singlePort() }

func (f *TableFactory) OutputSchema(port dag.PortHandle, in map[dag.PortHandle]types.Schema) (types.Schema, error) {
	inSchema, ok := in[PortDefault]
	if !ok {
		return types.Schema{}, fmt.Errorf("%w: table operator has no input schema", types.ErrSchemaMismatch)
	}
	return f.Mapper.OutputSchema(inSchema)
}

func (f *TableFactory) Build(in, out map[dag.PortHandle]types.Schema) (dag.Processor, error) {
	return &Table{mapper: f.Mapper}, nil
}

// Table is the generic chained table operator.
type Table struct {
	mapper TableMapper
}

func (t *Table) Process(fromPort dag.PortHandle, op types.Operation, fw dag.ProcessorForwarder) error {
	switch op.Type {
	case types.OpInsert:
		rows, err := t.mapper.Map(*op.New)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := fw.Send(PortDefault, types.Insert(r)); err != nil {
				return err
			}
		}
		return nil
	case types.OpDelete:
		rows, err := t.mapper.Map(*op.Old)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := fw.Send(PortDefault, types.Delete(r)); err != nil {
				return err
			}
		}
		return nil
	case types.OpUpdate:
		oldRows, err := t.mapper.Map(*op.Old)
		if err != nil {
			return err
		}
		newRows, err := t.mapper.Map(*op.New)
		if err != nil {
			return err
		}
		for _, r := range oldRows {
			if err := fw.Send(PortDefault, types.Delete(r)); err != nil {
				return err
			}
		}
		for _, r := range newRows {
			if err := fw.Send(PortDefault, types.Insert(r)); err != nil {
				return err
			}
		}
		return nil
	case types.OpBatchInsert:
		var out []types.Record
		for _, r := range op.NewBatch {
			rows, err := t.mapper.Map(r)
			if err != nil {
				return err
			}
			out = append(out, rows...)
		}
		return fw.Send(PortDefault, types.BatchInsert(out))
	default:
		return fmt.Errorf("table: unsupported operation type %v", op.Type)
	}
}

func (t *Table) Commit(epoch types.Epoch) error { return nil }
func (t *Table) OnTerminate() error              { return nil }
