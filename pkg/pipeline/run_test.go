package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuemby/weir/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestOpenCheckpointStoreLocalBackend(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenCheckpointStore(context.Background(), config.CheckpointConfig{
		Backend:  "local",
		LocalDir: filepath.Join(dir, "checkpoints"),
	})
	require.NoError(t, err)

	names, err := store.ListPipelines(context.Background())
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestOpenCheckpointStoreRejectsUnknownBackend(t *testing.T) {
	_, err := OpenCheckpointStore(context.Background(), config.CheckpointConfig{Backend: "carrier-pigeon"})
	require.Error(t, err)
}

func TestRunDrivesPipelineToCompletionAndRecordsCheckpoint(t *testing.T) {
	cfg, dir := writePipelineFixture(t, []string{"SELECT * FROM orders"})
	cfg.Checkpoint.LocalDir = filepath.Join(dir, "checkpoints")
	require.NoError(t, config.Validate(cfg))

	built, err := Build(cfg)
	require.NoError(t, err)
	defer built.Close()

	checkpoints, err := OpenCheckpointStore(context.Background(), cfg.Checkpoint)
	require.NoError(t, err)

	err = Run(context.Background(), cfg, built, checkpoints, nil)
	require.NoError(t, err)

	epoch, ok, err := checkpoints.LastCommittedEpoch(cfg.Name)
	require.NoError(t, err)
	require.True(t, ok, "finished run should have recorded a committed epoch")
	require.Equal(t, uint64(2), uint64(epoch), "both NDJSON lines should have committed")
}
