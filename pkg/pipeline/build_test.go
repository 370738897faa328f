package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/weir/pkg/config"
	"github.com/stretchr/testify/require"
)

func writePipelineFixture(t *testing.T, sql []string) (*config.PipelineConfig, string) {
	t.Helper()
	dir := t.TempDir()

	dataPath := filepath.Join(dir, "orders.ndjson")
	require.NoError(t, os.WriteFile(dataPath,
		[]byte(`{"id":1,"customer":"acme","total":12.5}`+"\n"+`{"id":2,"customer":"globex","total":4.25}`+"\n"),
		0o644))

	cfg := &config.PipelineConfig{
		Name:    "orders-pipeline",
		DataDir: dir,
		Sources: []config.SourceConfig{{
			Name:       "orders",
			Connection: "local",
			Options:    map[string]string{"path": dataPath},
			Fields: []config.FieldConfig{
				{Name: "id", Type: "uint"},
				{Name: "customer", Type: "string"},
				{Name: "total", Type: "float"},
			},
		}},
		SQL: sql,
		Endpoints: []config.EndpointConfig{{
			Name:       "order_totals",
			Source:     sourceForEndpoint(sql),
			PrimaryKey: []string{"id"},
		}},
		Checkpoint: config.CheckpointConfig{Backend: "local", LocalDir: filepath.Join(dir, "checkpoints")},
	}
	return cfg, dir
}

// sourceForEndpoint mirrors Build's "q<n>" naming convention: when a
// pipeline has SQL stages the endpoint reads from the first statement's
// output, "q1", otherwise straight from the raw source.
func sourceForEndpoint(sql []string) string {
	if len(sql) == 0 {
		return "orders"
	}
	return "q1"
}

func TestBuildWiresSourceThroughSQLToEndpoint(t *testing.T) {
	cfg, _ := writePipelineFixture(t, []string{"SELECT * FROM orders"})
	require.NoError(t, config.Validate(cfg))

	built, err := Build(cfg)
	require.NoError(t, err)
	defer built.Close()

	require.Len(t, built.Sources, 1)
	require.Equal(t, "orders", built.Sources[0])
	require.Contains(t, built.Caches, "order_totals")

	schema := built.Caches["order_totals"].Schema()
	require.Equal(t, []int{0}, schema.PrimaryIndex)

	require.NotEmpty(t, built.RunID)
	require.NotEmpty(t, built.EndpointGenerations["order_totals"])
}

func TestBuildAssignsDistinctRunIDsAcrossBuilds(t *testing.T) {
	cfg, _ := writePipelineFixture(t, []string{"SELECT * FROM orders"})
	require.NoError(t, config.Validate(cfg))

	first, err := Build(cfg)
	require.NoError(t, err)
	firstRunID := first.RunID
	firstEndpointGen := first.EndpointGenerations["order_totals"]
	first.Close()

	second, err := Build(cfg)
	require.NoError(t, err)
	defer second.Close()

	require.NotEqual(t, firstRunID, second.RunID)
	require.NotEqual(t, firstEndpointGen, second.EndpointGenerations["order_totals"])
}

func TestBuildWithoutSQLWiresSourceDirectlyToEndpoint(t *testing.T) {
	cfg, _ := writePipelineFixture(t, nil)
	require.NoError(t, config.Validate(cfg))

	built, err := Build(cfg)
	require.NoError(t, err)
	defer built.Close()

	require.Contains(t, built.Caches, "order_totals")
}

func TestBuildRejectsUnknownEndpointSource(t *testing.T) {
	cfg, _ := writePipelineFixture(t, []string{"SELECT * FROM orders"})
	cfg.Endpoints[0].Source = "does_not_exist"
	require.NoError(t, config.Validate(cfg))

	_, err := Build(cfg)
	require.Error(t, err)
}

func TestBuildRejectsMissingSourcePathOption(t *testing.T) {
	cfg, _ := writePipelineFixture(t, nil)
	cfg.Sources[0].Options = nil
	require.NoError(t, config.Validate(cfg))

	_, err := Build(cfg)
	require.Error(t, err)
}

func TestBuildRejectsUnknownPrimaryKeyField(t *testing.T) {
	cfg, _ := writePipelineFixture(t, nil)
	cfg.Endpoints[0].PrimaryKey = []string{"does_not_exist"}
	require.NoError(t, config.Validate(cfg))

	_, err := Build(cfg)
	require.Error(t, err)
}
