package checkpoint

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"strings"
	"sync"

	"github.com/cuemby/weir/pkg/metrics"
	"github.com/cuemby/weir/pkg/types"
	"github.com/google/uuid"
)

// record is the durable payload behind a pipeline's checkpoint key: the
// greatest epoch every sink has acknowledged, plus per-node state blobs
// written through the same commit hook for stateful processors. Generation
// names the checkpoint lineage that wrote it: every process that opens a
// Store mints a fresh one, so two processes racing to write the same
// pipeline's checkpoint (or a stale process resuming after a crash) are
// distinguishable in the persisted record even though Epoch alone cannot
// tell them apart.
type record struct {
	Epoch      types.Epoch
	NodeState  map[string][]byte
	Generation string
}

// Store tracks, per pipeline, the greatest epoch durably committed, so
// dag.Build can ask whether a source may resume. It satisfies
// dag.CheckpointReader.
type Store struct {
	store      ObjectStore
	generation string

	mu    sync.Mutex
	cache map[string]record
}

// NewStore returns a checkpoint Store backed by store, minting a fresh
// generation UUID that tags every checkpoint this Store writes.
func NewStore(store ObjectStore) *Store {
	return &Store{store: store, generation: uuid.NewString(), cache: make(map[string]record)}
}

func checkpointKey(pipeline string) string {
	return fmt.Sprintf("checkpoint/%s", pipeline)
}

// LastCommittedEpoch implements dag.CheckpointReader: it reports the
// greatest epoch recorded for pipeline, reading through to the object store
// on first access and caching afterward.
func (s *Store) LastCommittedEpoch(pipeline string) (types.Epoch, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.cache[pipeline]; ok {
		return r.Epoch, true, nil
	}

	data, err := s.store.Get(context.Background(), checkpointKey(pipeline))
	if err != nil {
		// No checkpoint yet is not an error condition the caller needs to
		// distinguish from a genuine read failure here; both mean "start
		// fresh". The object store backends return a wrapped os/aws error
		// either way, so we treat absence and failure identically: ok=false.
		return 0, false, nil
	}
	var r record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return 0, false, fmt.Errorf("decode checkpoint for %s: %w", pipeline, err)
	}
	s.cache[pipeline] = r
	return r.Epoch, true, nil
}

// RecordCommit durably records that epoch has been acknowledged by every
// sink in pipeline, along with any per-node state blobs supplied by
// stateful processors through the same commit hook.
func (s *Store) RecordCommit(pipeline string, epoch types.Epoch, nodeState map[string][]byte) error {
	timer := metrics.NewTimer()

	s.mu.Lock()
	r := record{Epoch: epoch, NodeState: nodeState, Generation: s.generation}
	s.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return fmt.Errorf("encode checkpoint for %s: %w", pipeline, err)
	}
	if err := s.store.Put(context.Background(), checkpointKey(pipeline), buf.Bytes()); err != nil {
		return fmt.Errorf("persist checkpoint for %s: %w", pipeline, err)
	}

	s.mu.Lock()
	s.cache[pipeline] = r
	s.mu.Unlock()

	timer.ObserveDuration(metrics.CheckpointDuration)
	metrics.CheckpointEpoch.WithLabelValues(pipeline).Set(float64(epoch))
	return nil
}

// ListPipelines returns the name of every pipeline with a durable
// checkpoint recorded in the underlying object store, by listing keys
// under the "checkpoint/" prefix rather than relying on s.cache, which
// only holds pipelines this process has already looked up.
func (s *Store) ListPipelines(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx, "checkpoint/")
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, "checkpoint/"))
	}
	return out, nil
}

// NodeState returns the per-node state blob last recorded for pipeline, or
// nil if none was written (stateless processors, or no checkpoint yet).
func (s *Store) NodeState(pipeline, node string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.cache[pipeline]
	if !ok {
		return nil
	}
	return r.NodeState[node]
}

// Generation returns the checkpoint generation UUID that wrote the
// currently-cached record for pipeline, and whether one has been read or
// written yet. Call LastCommittedEpoch first to populate the cache from the
// object store if this process hasn't written to pipeline itself.
func (s *Store) Generation(pipeline string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.cache[pipeline]
	if !ok || r.Generation == "" {
		return "", false
	}
	return r.Generation, true
}
