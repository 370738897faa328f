package operator

import (
	"fmt"
	"time"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/types"
)

// WindowKind tags which windowing function a Window node computes.
type WindowKind int

const (
	WindowTumble WindowKind = iota
	WindowHop
)

// WindowFactory builds a stateless windowing operator that replicates each
// input record with appended window_start/window_end columns.
type WindowFactory struct {
	Kind   WindowKind
	Column int // index of the timestamp column in the input schema
	Hop    time.Duration
	Size   time.Duration // interval for Tumble, window length for Hop
	Grace  time.Duration
}

func (f *WindowFactory) InputPorts() []dag.PortHandle  { return singlePort() }
func (f *WindowFactory) OutputPorts() []dag.PortHandle { return singlePort() }

func (f *WindowFactory) OutputSchema(port dag.PortHandle, in map[dag.PortHandle]types.Schema) (types.Schema, error) {
	inSchema, ok := in[PortDefault]
	if !ok {
		return types.Schema{}, fmt.Errorf("%w: window has no input schema", types.ErrSchemaMismatch)
	}
	if f.Column < 0 || f.Column >= len(inSchema.Fields) {
		return types.Schema{}, fmt.Errorf("%w: window column %d out of range", types.ErrFieldNotFound, f.Column)
	}
	if t := inSchema.Fields[f.Column].Type; t != types.FieldTypeTimestamp && t != types.FieldTypeDate {
		return types.Schema{}, fmt.Errorf("%w: window column must be timestamp/date, got %s", types.ErrSchemaMismatch, t)
	}
	fields := make([]types.FieldDefinition, 0, len(inSchema.Fields)+2)
	fields = append(fields, inSchema.Fields...)
	fields = append(fields,
		types.FieldDefinition{Name: "window_start", Type: types.FieldTypeTimestamp},
		types.FieldDefinition{Name: "window_end", Type: types.FieldTypeTimestamp},
	)
	return types.Schema{ID: inSchema.ID, Version: inSchema.Version, Fields: fields}, nil
}

func (f *WindowFactory) Build(in, out map[dag.PortHandle]types.Schema) (dag.Processor, error) {
	return &Window{kind: f.Kind, column: f.Column, hop: f.Hop, size: f.Size, grace: f.Grace}, nil
}

// Window replicates each record once per overlapping window (Tumble emits
// exactly one), appending window_start/window_end and a lifetime hint of
// window_end+grace for downstream eviction.
type Window struct {
	kind           WindowKind
	column         int
	hop, size, grace time.Duration
}

func (w *Window) windowsFor(t time.Time) []struct{ start, end time.Time } {
	switch w.kind {
	case WindowTumble:
		interval := w.size
		if interval <= 0 {
			interval = time.Second
		}
		start := t.Truncate(interval)
		return []struct{ start, end time.Time }{{start, start.Add(interval)}}
	case WindowHop:
		hop := w.hop
		if hop <= 0 {
			hop = time.Second
		}
		interval := w.size
		floor := t.Truncate(hop)
		first := floor.Add(-interval).Add(hop)
		var out []struct{ start, end time.Time }
		for start := first; start.Before(floor.Add(hop)); start = start.Add(hop) {
			out = append(out, struct{ start, end time.Time }{start, start.Add(interval)})
		}
		return out
	default:
		return nil
	}
}

func (w *Window) stamp(r types.Record) ([]types.Record, error) {
	if w.column < 0 || w.column >= len(r.Values) {
		return nil, fmt.Errorf("%w: window column %d out of range", types.ErrFieldNotFound, w.column)
	}
	t := r.Values[w.column].TimeVal
	var out []types.Record
	for _, win := range w.windowsFor(t) {
		lifetime := win.end.Add(w.grace)
		stamped := r.WithAppended(types.TimestampField(win.start), types.TimestampField(win.end))
		stamped.Lifetime = &lifetime
		out = append(out, stamped)
	}
	return out, nil
}

func (w *Window) Process(fromPort dag.PortHandle, op types.Operation, fw dag.ProcessorForwarder) error {
	switch op.Type {
	case types.OpInsert:
		stamped, err := w.stamp(*op.New)
		if err != nil {
			return err
		}
		for _, r := range stamped {
			if err := fw.Send(PortDefault, types.Insert(r)); err != nil {
				return err
			}
		}
		return nil
	case types.OpDelete:
		stamped, err := w.stamp(*op.Old)
		if err != nil {
			return err
		}
		for _, r := range stamped {
			if err := fw.Send(PortDefault, types.Delete(r)); err != nil {
				return err
			}
		}
		return nil
	case types.OpUpdate:
		oldStamped, err := w.stamp(*op.Old)
		if err != nil {
			return err
		}
		newStamped, err := w.stamp(*op.New)
		if err != nil {
			return err
		}
		for _, r := range oldStamped {
			if err := fw.Send(PortDefault, types.Delete(r)); err != nil {
				return err
			}
		}
		for _, r := range newStamped {
			if err := fw.Send(PortDefault, types.Insert(r)); err != nil {
				return err
			}
		}
		return nil
	case types.OpBatchInsert:
		var out []types.Record
		for _, r := range op.NewBatch {
			stamped, err := w.stamp(r)
			if err != nil {
				return err
			}
			out = append(out, stamped...)
		}
		return fw.Send(PortDefault, types.BatchInsert(out))
	default:
		return fmt.Errorf("window: unsupported operation type %v", op.Type)
	}
}

func (w *Window) Commit(epoch types.Epoch) error { return nil }
func (w *Window) OnTerminate() error              { return nil }
