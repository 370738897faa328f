package operator

import (
	"fmt"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/expr"
	"github.com/cuemby/weir/pkg/types"
)

// ProjectionFactory builds a stateless column-computing operator: a list of
// expressions, each evaluated against the input record to produce one
// output column. Names are carried as field definitions for schema
// derivation only; evaluation works purely on positional indices.
type ProjectionFactory struct {
	Expressions []expr.Expression
	Names       []string
}

func (f *ProjectionFactory) InputPorts() []dag.PortHandle  { return singlePort() }
func (f *ProjectionFactory) OutputPorts() []dag.PortHandle { return singlePort() }

func (f *ProjectionFactory) OutputSchema(port dag.PortHandle, in map[dag.PortHandle]types.Schema) (types.Schema, error) {
	inSchema, ok := in[PortDefault]
	if !ok {
		return types.Schema{}, fmt.Errorf("%w: projection has no input schema", types.ErrSchemaMismatch)
	}
	fields := make([]types.FieldDefinition, len(f.Expressions))
	for i, e := range f.Expressions {
		et, err := e.GetType(inSchema)
		if err != nil {
			return types.Schema{}, fmt.Errorf("projection column %d: %w", i, err)
		}
		name := e.String()
		if i < len(f.Names) && f.Names[i] != "" {
			name = f.Names[i]
		}
		fields[i] = types.FieldDefinition{Name: name, Type: et.ReturnType, Nullable: et.Nullable, Source: et.SourceDefinition}
	}
	return types.Schema{ID: inSchema.ID, Version: inSchema.Version, Fields: fields}, nil
}

func (f *ProjectionFactory) Build(in, out map[dag.PortHandle]types.Schema) (dag.Processor, error) {
	return &Projection{expressions: f.Expressions, inSchema: in[PortDefault]}, nil
}

// Projection evaluates the same expression list against both sides of an
// operation, preserving its shape (Insert/Delete/Update/BatchInsert).
type Projection struct {
	expressions []expr.Expression
	inSchema    types.Schema
}

func (p *Projection) project(r types.Record) (types.Record, error) {
	values := make([]types.Field, len(p.expressions))
	for i, e := range p.expressions {
		v, err := e.Evaluate(r, p.inSchema)
		if err != nil {
			return types.Record{}, fmt.Errorf("projection column %d: %w", i, err)
		}
		values[i] = v
	}
	return types.Record{Values: values}, nil
}

func (p *Projection) Process(fromPort dag.PortHandle, op types.Operation, fw dag.ProcessorForwarder) error {
	switch op.Type {
	case types.OpInsert:
		out, err := p.project(*op.New)
		if err != nil {
			return err
		}
		return fw.Send(PortDefault, types.Insert(out))

	case types.OpDelete:
		out, err := p.project(*op.Old)
		if err != nil {
			return err
		}
		return fw.Send(PortDefault, types.Delete(out))

	case types.OpUpdate:
		oldOut, err := p.project(*op.Old)
		if err != nil {
			return err
		}
		newOut, err := p.project(*op.New)
		if err != nil {
			return err
		}
		return fw.Send(PortDefault, types.Update(oldOut, newOut))

	case types.OpBatchInsert:
		out := make([]types.Record, len(op.NewBatch))
		for i, r := range op.NewBatch {
			projected, err := p.project(r)
			if err != nil {
				return err
			}
			out[i] = projected
		}
		return fw.Send(PortDefault, types.BatchInsert(out))

	default:
		return fmt.Errorf("projection: unsupported operation type %v", op.Type)
	}
}

func (p *Projection) Commit(epoch types.Epoch) error { return nil }
func (p *Projection) OnTerminate() error              { return nil }
