package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/cuemby/weir/pkg/types"
)

// encodeRecord serializes a Record for storage in the record database.
// Gob is used rather than a schema-driven binary format: this is purely
// internal cache storage with no cross-process wire contract (see
// DESIGN.md for why this, and not the checkpoint log's own concerns,
// justifies staying on the standard library here).
func encodeRecord(r types.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(b []byte) (types.Record, error) {
	var r types.Record
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return types.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

type schemaEnvelope struct {
	Schema  types.Schema
	Indexes []IndexDef
}

func encodeSchemaEnvelope(schema types.Schema, indexes []IndexDef) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(schemaEnvelope{Schema: schema, Indexes: indexes}); err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSchemaEnvelope(b []byte) (types.Schema, []IndexDef, error) {
	var env schemaEnvelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return types.Schema{}, nil, fmt.Errorf("decode schema: %w", err)
	}
	return env.Schema, env.Indexes, nil
}
