// Package config loads a pipeline definition from a YAML file and overlays
// it with WEIR_*-prefixed environment variables, generalizing the
// teacher's cobra/viper flag-binding pattern to a declarative pipeline file
// instead of command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/cuemby/weir/pkg/types"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// KVOptions mirrors kvstore.EnvOptions so it can be decoded from YAML.
type KVOptions struct {
	MaxDBs         int   `yaml:"max_dbs"`
	MaxReaders     int   `yaml:"max_readers"`
	MapSizeBytes   int64 `yaml:"map_size_bytes"`
	NoSync         bool  `yaml:"no_sync"`
	NoLock         bool  `yaml:"no_lock"`
	WritableMemMap bool  `yaml:"writable_mem_map"`
}

// S3Config is the YAML-decodable shape of checkpoint.S3Config.
type S3Config struct {
	Bucket                  string `yaml:"bucket"`
	Prefix                  string `yaml:"prefix"`
	Region                  string `yaml:"region"`
	Endpoint                string `yaml:"endpoint"`
	AccessKeyID             string `yaml:"access_key_id"`
	SecretAccessKey         string `yaml:"secret_access_key"`
	MultipartThresholdBytes int64  `yaml:"multipart_threshold_bytes"`
	MultipartPartSizeBytes  int64  `yaml:"multipart_part_size_bytes"`
	MaxRetries              int    `yaml:"max_retries"`
}

// CheckpointConfig selects and configures the checkpoint object-store
// backend: "local" (LocalDir) or "s3" (S3).
type CheckpointConfig struct {
	Backend  string   `yaml:"backend"`
	LocalDir string   `yaml:"local_dir"`
	S3       S3Config `yaml:"s3"`
}

// IndexConfig declares one secondary index on an endpoint.
type IndexConfig struct {
	Fields []string `yaml:"fields"`
	Kind   string   `yaml:"kind"` // "sorted_inverted" | "full_text"
}

// EndpointConfig declares one cache endpoint materialized from a pipeline
// node's output, along with its secondary indexes.
type EndpointConfig struct {
	Name       string        `yaml:"name"`
	Source     string        `yaml:"source"` // node handle feeding this endpoint
	PrimaryKey []string      `yaml:"primary_key"`
	Indexes    []IndexConfig `yaml:"indexes"`
}

// FieldConfig declares one column of a SourceConfig's schema.
type FieldConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
}

// SourceConfig names one upstream connection a pipeline ingests from. The
// connector implementation itself (Postgres CDC, Kafka, ...) is an external
// collaborator weir does not implement; this only carries enough to name
// and configure it. Connection selects which registered connector kind
// reads it ("file" is the only one weir ships, for local testing); Fields
// declares the schema a connector that doesn't discover its own (unlike a
// real CDC source) needs to be told.
type SourceConfig struct {
	Name       string            `yaml:"name"`
	Connection string            `yaml:"connection"`
	Table      string            `yaml:"table"`
	Fields     []FieldConfig     `yaml:"fields"`
	Options    map[string]string `yaml:"options"`
}

// PipelineConfig is the full decoded shape of a pipeline YAML file.
type PipelineConfig struct {
	Name       string           `yaml:"name"`
	DataDir    string           `yaml:"data_dir"`
	Sources    []SourceConfig   `yaml:"sources"`
	SQL        []string         `yaml:"sql"`
	Endpoints  []EndpointConfig `yaml:"endpoints"`
	KV         KVOptions        `yaml:"kv"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Async      bool             `yaml:"async_indexing"`
}

// Load reads a pipeline YAML file from path and overlays it with any
// matching WEIR_*-prefixed environment variables (e.g. WEIR_KV_MAP_SIZE_BYTES
// overrides kv.map_size_bytes, WEIR_CHECKPOINT_BACKEND overrides
// checkpoint.backend).
func Load(path string) (*PipelineConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WEIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read pipeline config %s: %w", path, err)
	}

	var cfg PipelineConfig
	if err := v.Unmarshal(&cfg, withYAMLTag); err != nil {
		return nil, fmt.Errorf("decode pipeline config %s: %w", path, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// withYAMLTag tells viper's mapstructure decoder to match config keys
// against the struct's `yaml` tags instead of its default `mapstructure`
// tags, since PipelineConfig is tagged for direct gopkg.in/yaml.v3 use by
// LoadBytes as well.
func withYAMLTag(dc *mapstructure.DecoderConfig) {
	dc.TagName = "yaml"
}

// Validate checks the minimal invariants a pipeline config must satisfy
// before a build is attempted: a name, a recognized checkpoint backend, and
// a primary key on every endpoint. A config with no endpoints is accepted.
func Validate(cfg *PipelineConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("pipeline config: name is required")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	switch cfg.Checkpoint.Backend {
	case "", "local":
		if cfg.Checkpoint.LocalDir == "" {
			cfg.Checkpoint.Backend = "local"
			cfg.Checkpoint.LocalDir = "./checkpoints"
		}
	case "s3":
		if cfg.Checkpoint.S3.Bucket == "" {
			return fmt.Errorf("pipeline config: checkpoint.s3.bucket is required when backend is s3")
		}
	default:
		return fmt.Errorf("pipeline config: unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
	for _, ep := range cfg.Endpoints {
		if len(ep.PrimaryKey) == 0 {
			return fmt.Errorf("pipeline config: endpoint %q needs a primary_key", ep.Name)
		}
	}
	return nil
}

// LoadBytes parses raw YAML bytes directly, for tests and for embedding a
// pipeline definition without a file on disk.
func LoadBytes(data []byte) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode pipeline config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var fieldTypeByName = map[string]types.FieldType{
	"uint": types.FieldTypeUInt, "uint128": types.FieldTypeUInt128,
	"int": types.FieldTypeInt, "int128": types.FieldTypeInt128,
	"float": types.FieldTypeFloat, "boolean": types.FieldTypeBoolean, "bool": types.FieldTypeBoolean,
	"string": types.FieldTypeString, "text": types.FieldTypeText, "binary": types.FieldTypeBinary,
	"decimal": types.FieldTypeDecimal, "timestamp": types.FieldTypeTimestamp, "date": types.FieldTypeDate,
	"json": types.FieldTypeJSON, "point": types.FieldTypePoint, "duration": types.FieldTypeDuration,
}

// ParseFieldType resolves a YAML field type name (e.g. "string", "int",
// "timestamp") to its types.FieldType, case-insensitively.
func ParseFieldType(name string) (types.FieldType, error) {
	t, ok := fieldTypeByName[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("config: unknown field type %q", name)
	}
	return t, nil
}

// Schema builds the types.Schema a SourceConfig's declared Fields describe,
// identified by the source's own name.
func (s SourceConfig) Schema() (types.Schema, error) {
	fields := make([]types.FieldDefinition, len(s.Fields))
	for i, f := range s.Fields {
		t, err := ParseFieldType(f.Type)
		if err != nil {
			return types.Schema{}, fmt.Errorf("source %q field %q: %w", s.Name, f.Name, err)
		}
		fields[i] = types.FieldDefinition{Name: f.Name, Type: t, Nullable: f.Nullable, Source: s.Name}
	}
	return types.Schema{ID: s.Name, Version: 1, Fields: fields}, nil
}
