package file

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/operator"
	"github.com/cuemby/weir/pkg/types"
)

// Factory builds a Source that snapshots one NDJSON file against a fixed
// schema. Path is the file to read; Schema names and types its columns in
// declaration order, matching the JSON object keys expected on each line.
type Factory struct {
	Path   string
	Schema types.Schema
}

func (f *Factory) OutputPorts() []dag.PortHandle { return []dag.PortHandle{operator.PortDefault} }

func (f *Factory) OutputSchema(port dag.PortHandle) (types.Schema, error) {
	return f.Schema, nil
}

func (f *Factory) Build(outputSchemas map[dag.PortHandle]types.Schema) (dag.Source, error) {
	return &Source{path: f.Path, schema: f.Schema}, nil
}

// Source reads every line of path once, decodes it against schema, and
// emits it as an Insert. It never resumes mid-file: a restart re-snapshots
// from the top, the same as a CDC source whose prior checkpoint predates
// its retention window.
type Source struct {
	path   string
	schema types.Schema
}

// CanStartFrom always refuses resumption: this connector has no durable
// read position to resume from, so dag.Build always starts it fresh.
func (s *Source) CanStartFrom(epoch types.Epoch) (bool, error) { return false, nil }

// Run reads every line of the file as one JSON object per row, inserting
// each as its own epoch so a downstream sink can commit incrementally
// rather than waiting for end of file, then signals that the snapshot is
// complete. No further epoch is committed after the last line's.
func (s *Source) Run(fw dag.SourceForwarder, resumeFrom *types.Epoch) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("file source: open %s: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var epoch types.Epoch
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		record, err := s.decodeLine(line)
		if err != nil {
			return fmt.Errorf("file source: %s: %w", s.path, err)
		}
		epoch++
		if err := fw.Send(operator.PortDefault, types.Insert(record), epoch); err != nil {
			return err
		}
		if err := fw.Commit(epoch); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("file source: read %s: %w", s.path, err)
	}
	return fw.SnapshottingDone()
}

// decodeLine parses one JSON object line into a Record whose values line
// up with s.schema's field order, by name.
func (s *Source) decodeLine(line []byte) (types.Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return types.Record{}, fmt.Errorf("decode line: %w", err)
	}
	values := make([]types.Field, len(s.schema.Fields))
	for i, fd := range s.schema.Fields {
		rv, ok := raw[fd.Name]
		if !ok || string(rv) == "null" {
			if !fd.Nullable {
				return types.Record{}, fmt.Errorf("field %q: missing non-nullable value", fd.Name)
			}
			values[i] = types.NullField(fd.Type)
			continue
		}
		field, err := decodeField(fd, rv)
		if err != nil {
			return types.Record{}, fmt.Errorf("field %q: %w", fd.Name, err)
		}
		values[i] = field
	}
	return types.Record{Values: values}, nil
}

func decodeField(fd types.FieldDefinition, raw json.RawMessage) (types.Field, error) {
	switch fd.Type {
	case types.FieldTypeUInt:
		var v uint64
		if err := json.Unmarshal(raw, &v); err != nil {
			return types.Field{}, err
		}
		return types.UIntField(v), nil
	case types.FieldTypeInt:
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return types.Field{}, err
		}
		return types.IntField(v), nil
	case types.FieldTypeFloat:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return types.Field{}, err
		}
		return types.FloatField(v), nil
	case types.FieldTypeBoolean:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return types.Field{}, err
		}
		return types.BoolField(v), nil
	case types.FieldTypeString:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return types.Field{}, err
		}
		return types.StringField(v), nil
	case types.FieldTypeText:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return types.Field{}, err
		}
		return types.TextField(v), nil
	case types.FieldTypeJSON:
		return types.JSONField(json.RawMessage(append([]byte{}, raw...))), nil
	default:
		return types.Field{}, fmt.Errorf("unsupported field type %s for NDJSON decoding", fd.Type)
	}
}
