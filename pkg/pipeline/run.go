package pipeline

import (
	"context"
	"fmt"

	"github.com/cuemby/weir/pkg/checkpoint"
	"github.com/cuemby/weir/pkg/config"
	"github.com/cuemby/weir/pkg/executor"
	"github.com/cuemby/weir/pkg/observability"
)

// OpenCheckpointStore opens the object-store backend cfg.Checkpoint names
// (local directory or S3 bucket) and wraps it in a checkpoint.Store.
func OpenCheckpointStore(ctx context.Context, cfg config.CheckpointConfig) (*checkpoint.Store, error) {
	switch cfg.Backend {
	case "", "local":
		store, err := checkpoint.NewLocalObjectStore(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("open local checkpoint store: %w", err)
		}
		return checkpoint.NewStore(store), nil
	case "s3":
		s3cfg := checkpoint.DefaultS3Config()
		s3cfg.Bucket = cfg.S3.Bucket
		s3cfg.Prefix = cfg.S3.Prefix
		s3cfg.Region = cfg.S3.Region
		s3cfg.Endpoint = cfg.S3.Endpoint
		s3cfg.AccessKeyID = cfg.S3.AccessKeyID
		s3cfg.SecretAccessKey = cfg.S3.SecretAccessKey
		if cfg.S3.MultipartThresholdBytes > 0 {
			s3cfg.MultipartThresholdBytes = cfg.S3.MultipartThresholdBytes
		}
		if cfg.S3.MultipartPartSizeBytes > 0 {
			s3cfg.MultipartPartSizeBytes = cfg.S3.MultipartPartSizeBytes
		}
		if cfg.S3.MaxRetries > 0 {
			s3cfg.MaxRetries = cfg.S3.MaxRetries
		}
		store, err := checkpoint.NewS3ObjectStore(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("open s3 checkpoint store: %w", err)
		}
		return checkpoint.NewStore(store), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

// Run builds built's dag against any prior checkpoint for cfg.Name and
// drives it to completion, recording newly committed epochs back to the
// same store as it goes.
func Run(ctx context.Context, cfg *config.PipelineConfig, built *Built, checkpoints *checkpoint.Store, events *observability.Broker) error {
	runnable, err := built.Dag.Build(cfg.Name, checkpoints)
	if err != nil {
		return fmt.Errorf("build dag: %w", err)
	}

	exec := executor.New(runnable, executor.Options{
		Pipeline:    cfg.Name,
		Checkpoints: checkpoints,
		Events:      events,
	})
	return exec.Run(ctx)
}
