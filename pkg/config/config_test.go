package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePipeline = `
name: orders-pipeline
sources:
  - name: pg
    connection: postgres-main
    table: orders
sql:
  - "SELECT customer_id, SUM(amount) AS total FROM orders GROUP BY customer_id"
endpoints:
  - name: customer_totals
    source: agg_1
    primary_key: [customer_id]
    indexes:
      - fields: [total]
        kind: sorted_inverted
kv:
  max_dbs: 32
  map_size_bytes: 2147483648
checkpoint:
  backend: local
  local_dir: /var/lib/weir/checkpoints
`

func TestLoadBytesDecodesPipeline(t *testing.T) {
	cfg, err := LoadBytes([]byte(samplePipeline))
	require.NoError(t, err)

	require.Equal(t, "orders-pipeline", cfg.Name)
	require.Len(t, cfg.Sources, 1)
	require.Equal(t, "postgres-main", cfg.Sources[0].Connection)
	require.Len(t, cfg.SQL, 1)
	require.Len(t, cfg.Endpoints, 1)
	require.Equal(t, []string{"customer_id"}, cfg.Endpoints[0].PrimaryKey)
	require.Equal(t, "sorted_inverted", cfg.Endpoints[0].Indexes[0].Kind)
	require.Equal(t, 32, cfg.KV.MaxDBs)
	require.Equal(t, int64(2147483648), cfg.KV.MapSizeBytes)
	require.Equal(t, "local", cfg.Checkpoint.Backend)
	require.Equal(t, "/var/lib/weir/checkpoints", cfg.Checkpoint.LocalDir)
}

func TestValidateRejectsMissingName(t *testing.T) {
	_, err := LoadBytes([]byte("endpoints: []\n"))
	require.Error(t, err)
}

func TestValidateRejectsS3BackendWithoutBucket(t *testing.T) {
	_, err := LoadBytes([]byte("name: p\ncheckpoint:\n  backend: s3\n"))
	require.Error(t, err)
}

func TestValidateRejectsEndpointWithoutPrimaryKey(t *testing.T) {
	_, err := LoadBytes([]byte("name: p\nendpoints:\n  - name: e\n"))
	require.Error(t, err)
}

func TestValidateDefaultsLocalBackend(t *testing.T) {
	cfg, err := LoadBytes([]byte("name: p\n"))
	require.NoError(t, err)
	require.Equal(t, "local", cfg.Checkpoint.Backend)
	require.Equal(t, "./checkpoints", cfg.Checkpoint.LocalDir)
}
