// Package errmgr implements the bounded failure policy the executor
// applies to errors a node's Process call returns: log-and-continue, which
// drops the offending operation and keeps the node running, or
// escalate-and-halt, which propagates the error to stop the pipeline.
// Errors from Commit or schema propagation are never subject to this
// policy — they are always fatal, handled directly by their callers.
package errmgr

import (
	"sync/atomic"

	"github.com/cuemby/weir/pkg/log"
	"github.com/cuemby/weir/pkg/metrics"
)

// Policy selects how a node's ErrorManager reacts to a Process error.
type Policy int

const (
	// LogAndContinue logs the error, drops the operation, and keeps the
	// node running.
	LogAndContinue Policy = iota
	// EscalateAndHalt returns the error to the executor, which stops the
	// pipeline.
	EscalateAndHalt
)

// Manager applies a node's configured Policy to errors from Process,
// tracking how many have been dropped so the executor can report it.
type Manager struct {
	pipeline string
	node     string
	policy   Policy
	dropped  atomic.Uint64
}

// New returns a Manager for one node within one pipeline.
func New(pipeline, node string, policy Policy) *Manager {
	return &Manager{pipeline: pipeline, node: node, policy: policy}
}

// Handle reacts to err per the configured policy. It returns a non-nil
// error only when the pipeline should halt, which is when the policy is
// EscalateAndHalt. Handle is always safe to call with a nil error,
// returning nil.
func (m *Manager) Handle(err error) error {
	if err == nil {
		return nil
	}
	logger := log.WithComponent("errmgr").With().Str("pipeline", m.pipeline).Str("node", m.node).Logger()
	if m.policy == EscalateAndHalt {
		logger.Error().Err(err).Msg("processor error, halting pipeline")
		return err
	}
	m.dropped.Add(1)
	metrics.OperationsDroppedTotal.WithLabelValues(m.pipeline, m.node).Inc()
	logger.Warn().Err(err).Msg("processor error, dropping operation")
	return nil
}

// Dropped returns the number of operations dropped under LogAndContinue.
func (m *Manager) Dropped() uint64 { return m.dropped.Load() }
