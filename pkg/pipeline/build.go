package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/cuemby/weir/pkg/cache"
	"github.com/cuemby/weir/pkg/config"
	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/ingest/cachesink"
	"github.com/cuemby/weir/pkg/ingest/file"
	"github.com/cuemby/weir/pkg/kvstore"
	"github.com/cuemby/weir/pkg/operator"
	"github.com/cuemby/weir/pkg/sql"
	"github.com/cuemby/weir/pkg/types"
	"github.com/google/uuid"
)

// Built is a pipeline ready to run: the wired dag.Dag, a kvstore.Env
// backing every endpoint's cache, and the open caches themselves keyed by
// endpoint name.
//
// RunID names this particular build of the pipeline: cfg.Name is a
// human-chosen, reused-across-runs identifier, so a UUID is what
// distinguishes one invocation of "weir run" from another in logs. Each
// endpoint's cache similarly gets its own build-generation UUID in
// EndpointGenerations, so an operator correlating "weir cache inspect"
// output against a specific run's logs has something finer-grained than
// the endpoint's (also reused-across-runs) name to key on.
type Built struct {
	Dag                 *dag.Dag
	Env                 *kvstore.Env
	Caches              map[string]*cache.Cache
	Sources             []string
	RunID               string
	EndpointGenerations map[string]string
}

// Close releases everything Build opened.
func (b *Built) Close() {
	for _, c := range b.Caches {
		c.Close()
	}
	if b.Env != nil {
		b.Env.Close()
	}
}

// Build parses cfg.SQL against cfg.Sources, wires the resulting operator
// chains and cfg.Endpoints' cache sinks into a dag.Dag, and opens the
// kvstore env and per-endpoint caches those sinks write to.
//
// Each SQL statement names its own output node as "q<n>" (1-based,
// matching its position in cfg.SQL); later statements and endpoints may
// reference either a raw source name or an earlier statement's "q<n>" as
// their FROM table / Source.
func Build(cfg *config.PipelineConfig) (*Built, error) {
	d := dag.New()
	bindings := make(map[string]sql.SourceBinding)
	var sourceNames []string

	for _, sc := range cfg.Sources {
		schema, err := sc.Schema()
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sc.Name, err)
		}
		path := sc.Options["path"]
		if path == "" {
			return nil, fmt.Errorf("source %q: options.path is required (the \"file\" connector reads a local NDJSON file)", sc.Name)
		}
		handle := dag.NodeHandle(sc.Name)
		if err := d.AddSource(handle, &file.Factory{Path: path, Schema: schema}); err != nil {
			return nil, fmt.Errorf("source %q: %w", sc.Name, err)
		}
		bindings[sc.Name] = sql.SourceBinding{Node: handle, Port: operator.PortDefault, Schema: schema}
		sourceNames = append(sourceNames, sc.Name)
	}

	for i, stmt := range cfg.SQL {
		q, err := sql.Parse(stmt)
		if err != nil {
			return nil, fmt.Errorf("sql[%d]: %w", i, err)
		}
		node, port, schema, err := sql.Plan(d, q, bindings, nil)
		if err != nil {
			return nil, fmt.Errorf("sql[%d]: %w", i, err)
		}
		name := fmt.Sprintf("q%d", i+1)
		bindings[name] = sql.SourceBinding{Node: node, Port: port, Schema: schema}
	}

	env, err := kvstore.OpenEnv(filepath.Join(cfg.DataDir, "cache.db"), envOptions(cfg.KV))
	if err != nil {
		return nil, fmt.Errorf("open kv env: %w", err)
	}

	caches := make(map[string]*cache.Cache)
	endpointGenerations := make(map[string]string, len(cfg.Endpoints))
	for _, ec := range cfg.Endpoints {
		binding, ok := bindings[ec.Source]
		if !ok {
			env.Close()
			return nil, fmt.Errorf("endpoint %q: unknown source %q", ec.Name, ec.Source)
		}
		schema, err := endpointSchema(ec, binding.Schema)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("endpoint %q: %w", ec.Name, err)
		}
		indexes, err := endpointIndexes(ec, schema)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("endpoint %q: %w", ec.Name, err)
		}

		c, err := cache.Open(env, ec.Name, schema, indexes, cache.Config{AsyncIndexing: cfg.Async})
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("endpoint %q: open cache: %w", ec.Name, err)
		}
		caches[ec.Name] = c
		endpointGenerations[ec.Name] = uuid.NewString()

		handle := dag.NodeHandle("sink_" + ec.Name)
		if err := d.AddSink(handle, &cachesink.Factory{Cache: c}); err != nil {
			env.Close()
			return nil, fmt.Errorf("endpoint %q: %w", ec.Name, err)
		}
		if err := d.Connect(dag.Endpoint{Node: binding.Node, Port: binding.Port}, dag.Endpoint{Node: handle, Port: operator.PortDefault}); err != nil {
			env.Close()
			return nil, fmt.Errorf("endpoint %q: %w", ec.Name, err)
		}
	}

	return &Built{
		Dag:                 d,
		Env:                 env,
		Caches:              caches,
		Sources:             sourceNames,
		RunID:               uuid.NewString(),
		EndpointGenerations: endpointGenerations,
	}, nil
}

func envOptions(kv config.KVOptions) kvstore.EnvOptions {
	opts := kvstore.DefaultEnvOptions()
	if kv.MaxDBs > 0 {
		opts.MaxDBs = kv.MaxDBs
	}
	if kv.MaxReaders > 0 {
		opts.MaxReaders = kv.MaxReaders
	}
	if kv.MapSizeBytes > 0 {
		opts.MapSizeBytes = kv.MapSizeBytes
	}
	opts.NoSync = kv.NoSync
	opts.NoLock = kv.NoLock
	opts.WritableMemMap = kv.WritableMemMap
	return opts
}

// endpointSchema derives the cache schema for an endpoint from the schema
// its upstream node produces, identified by the endpoint's own name and
// with PrimaryIndex resolved from its declared primary_key field names.
func endpointSchema(ec config.EndpointConfig, upstream types.Schema) (types.Schema, error) {
	schema := upstream
	schema.ID = ec.Name
	schema.Version = 1
	schema.PrimaryIndex = make([]int, len(ec.PrimaryKey))
	for i, name := range ec.PrimaryKey {
		pos := upstream.FieldIndex(name)
		if pos < 0 {
			return types.Schema{}, fmt.Errorf("%w: primary_key field %q", types.ErrFieldNotFound, name)
		}
		schema.PrimaryIndex[i] = pos
	}
	return schema, nil
}

func endpointIndexes(ec config.EndpointConfig, schema types.Schema) ([]cache.IndexDef, error) {
	out := make([]cache.IndexDef, len(ec.Indexes))
	for i, ic := range ec.Indexes {
		var kind cache.IndexKind
		switch ic.Kind {
		case "", "sorted_inverted":
			kind = cache.SortedInverted
		case "full_text":
			kind = cache.FullText
		default:
			return nil, fmt.Errorf("index %d: unknown kind %q", i, ic.Kind)
		}
		fieldIndices := make([]int, len(ic.Fields))
		for j, name := range ic.Fields {
			pos := schema.FieldIndex(name)
			if pos < 0 {
				return nil, fmt.Errorf("%w: index %d field %q", types.ErrFieldNotFound, i, name)
			}
			fieldIndices[j] = pos
		}
		out[i] = cache.IndexDef{Kind: kind, FieldIndices: fieldIndices}
	}
	return out, nil
}
