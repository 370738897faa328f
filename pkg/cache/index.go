package cache

import "github.com/cuemby/weir/pkg/types"

// IndexKind tags the variant of an IndexDef.
type IndexKind int

const (
	SortedInverted IndexKind = iota
	FullText
)

// IndexDef is a secondary index definition: either a composite
// SortedInverted index over an ordered list of field indices, or a
// FullText index over a single field index.
type IndexDef struct {
	Kind         IndexKind
	FieldIndices []int
}

// Keys computes the encoded index key(s) for a record: one composite key
// for SortedInverted, or one key per distinct tokenized term for FullText.
func (d IndexDef) Keys(schema types.Schema, values []Field) [][]byte {
	switch d.Kind {
	case SortedInverted:
		fields := make([]types.Field, len(d.FieldIndices))
		for i, idx := range d.FieldIndices {
			fields[i] = values[idx]
		}
		return [][]byte{types.EncodeComposite(fields)}
	case FullText:
		idx := d.FieldIndices[0]
		terms := Tokenize(values[idx].String())
		seen := make(map[string]struct{}, len(terms))
		var keys [][]byte
		for _, term := range terms {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			keys = append(keys, []byte(term))
		}
		return keys
	default:
		return nil
	}
}

// Field is an alias kept local to this package for readability in
// signatures that are clearly about cached record values.
type Field = types.Field
