package checkpoint

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/weir/pkg/metrics"
	"github.com/cuemby/weir/pkg/types"
)

// LogEntry is a contiguous slice of a endpoint's operation log: every
// operation applied between StartOffset and StartOffset+len(Ops).
type LogEntry struct {
	StartOffset uint64
	Ops         []types.Operation
}

// EndOffset is the offset one past the last operation in the entry.
func (e LogEntry) EndOffset() uint64 { return e.StartOffset + uint64(len(e.Ops)) }

// LogStore appends LogEntry objects for one endpoint to an ObjectStore,
// naming each object "<start>-<end>" zero-padded to 20 digits under the
// endpoint's prefix, per the external log entry naming convention.
type LogStore struct {
	store    ObjectStore
	endpoint string
}

// NewLogStore returns a LogStore for endpoint backed by store.
func NewLogStore(store ObjectStore, endpoint string) *LogStore {
	return &LogStore{store: store, endpoint: endpoint}
}

func entryKey(endpoint string, start, end uint64) string {
	return fmt.Sprintf("log/%s/%020d-%020d", endpoint, start, end)
}

// Append persists entry, rejecting it if it does not start exactly where
// the log currently ends (entry 0 must start at 0); log entries must be
// mutually contiguous or recovery cannot reassemble the operation stream.
func (l *LogStore) Append(ctx context.Context, entry LogEntry) error {
	entries, err := l.List(ctx)
	if err != nil {
		return err
	}
	var wantStart uint64
	if len(entries) > 0 {
		wantStart = entries[len(entries)-1].EndOffset()
	}
	if entry.StartOffset != wantStart {
		return fmt.Errorf("log entry for %s must start at %d, got %d (non-contiguous)", l.endpoint, wantStart, entry.StartOffset)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	key := entryKey(l.endpoint, entry.StartOffset, entry.EndOffset())
	if err := l.store.Put(ctx, key, buf.Bytes()); err != nil {
		return err
	}
	metrics.LogEntriesTotal.WithLabelValues(l.endpoint).Set(float64(len(entries) + 1))
	return nil
}

// List returns every persisted entry for the endpoint in offset order.
func (l *LogStore) List(ctx context.Context) ([]LogEntry, error) {
	keys, err := l.store.List(ctx, fmt.Sprintf("log/%s/", l.endpoint))
	if err != nil {
		return nil, err
	}
	out := make([]LogEntry, 0, len(keys))
	for _, key := range keys {
		data, err := l.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		var entry LogEntry
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode log entry %s: %w", key, err)
		}
		out = append(out, entry)
	}
	if err := validateContiguous(out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateContiguous(entries []LogEntry) error {
	var want uint64
	for _, e := range entries {
		if e.StartOffset != want {
			return fmt.Errorf("log recovery fatal: entry starting at %d does not follow offset %d", e.StartOffset, want)
		}
		want = e.EndOffset()
	}
	return nil
}

// parseEntryKey extracts the (start, end) pair from a "<start>-<end>" key,
// used only by tooling/tests that want to inspect keys without a full List.
func parseEntryKey(key string) (start, end uint64, ok bool) {
	base := key
	if idx := strings.LastIndexByte(key, '/'); idx >= 0 {
		base = key[idx+1:]
	}
	parts := strings.SplitN(base, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	s, err1 := strconv.ParseUint(parts[0], 10, 64)
	e, err2 := strconv.ParseUint(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return s, e, true
}
