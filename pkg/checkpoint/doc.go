// Package checkpoint persists the durable state a pipeline needs to
// recover: per-endpoint LogEntry objects recording the operations applied
// since the last snapshot, and the greatest epoch every sink has
// acknowledged for a pipeline, so dag.Build can ask a source whether it may
// resume rather than replay from scratch. Both are written through an
// ObjectStore abstraction with a local-disk and an S3 backend.
package checkpoint
