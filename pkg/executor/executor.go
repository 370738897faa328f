// Package executor runs a built dag.BuilderDag: one goroutine per node,
// bounded channels per edge, and the epoch-barrier commit protocol that
// lets every node agree when an epoch is fully processed before any sink
// acts on it.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/errmgr"
	"github.com/cuemby/weir/pkg/log"
	"github.com/cuemby/weir/pkg/metrics"
	"github.com/cuemby/weir/pkg/observability"
	"github.com/cuemby/weir/pkg/types"
)

// DefaultChannelBuffer is how many ExecutorOperations are buffered on each
// edge before a sender blocks, providing backpressure from slow downstream
// nodes to fast upstream ones.
const DefaultChannelBuffer = 1024

// CheckpointRecorder durably records, for a pipeline, the greatest epoch
// every sink has acknowledged. checkpoint.Store implements this.
type CheckpointRecorder interface {
	RecordCommit(pipeline string, epoch types.Epoch, nodeState map[string][]byte) error
}

// Options configures an Executor.
type Options struct {
	Pipeline      string
	ChannelBuffer int
	// Policies maps a node handle to its error-handling policy. Nodes not
	// present default to errmgr.LogAndContinue.
	Policies map[dag.NodeHandle]errmgr.Policy
	// Checkpoints, if set, is told the greatest epoch durably committed
	// once every sink in the pipeline has acknowledged it.
	Checkpoints CheckpointRecorder
	// Events, if set, receives epoch/snapshot/termination notifications for
	// operational visibility; nil disables publishing entirely.
	Events *observability.Broker
}

// Executor drives every node of a built DAG to completion or to the first
// fatal error.
type Executor struct {
	built       *dag.BuilderDag
	pipeline    string
	buffer      int
	policies    map[dag.NodeHandle]errmgr.Policy
	checkpoints CheckpointRecorder
	events      *observability.Broker

	channels map[dag.Edge]chan types.ExecutorOperation

	sinkCount int
	sinkMu    sync.Mutex
	sinkAcks  map[types.Epoch]int
}

// New wires channels for every edge of built but does not start any node.
func New(built *dag.BuilderDag, opts Options) *Executor {
	buf := opts.ChannelBuffer
	if buf <= 0 {
		buf = DefaultChannelBuffer
	}
	e := &Executor{
		built:       built,
		pipeline:    opts.Pipeline,
		buffer:      buf,
		policies:    opts.Policies,
		checkpoints: opts.Checkpoints,
		events:      opts.Events,
		channels:    make(map[dag.Edge]chan types.ExecutorOperation, len(built.Edges)),
		sinkAcks:    make(map[types.Epoch]int),
	}
	for _, edge := range built.Edges {
		e.channels[edge] = make(chan types.ExecutorOperation, buf)
	}
	for _, n := range built.Nodes {
		var kind string
		switch n.Kind {
		case dag.KindSource:
			kind = "source"
		case dag.KindProcessor:
			kind = "processor"
		case dag.KindSink:
			kind = "sink"
			e.sinkCount++
		}
		metrics.DAGNodesTotal.WithLabelValues(e.pipeline, kind).Inc()
	}
	return e
}

// noteSinkCommit records that one sink has acknowledged epoch; once every
// sink has, it asks the checkpoint recorder (if any) to persist the epoch
// as the pipeline's new durable high-water mark. recorded reports whether
// this call was the one that triggered persistence.
func (e *Executor) noteSinkCommit(epoch types.Epoch) (recorded bool, err error) {
	if e.checkpoints == nil {
		return false, nil
	}
	e.sinkMu.Lock()
	e.sinkAcks[epoch]++
	ready := e.sinkAcks[epoch] == e.sinkCount
	if ready {
		delete(e.sinkAcks, epoch)
	}
	e.sinkMu.Unlock()
	if !ready {
		return false, nil
	}
	if err := e.checkpoints.RecordCommit(e.pipeline, epoch, nil); err != nil {
		return false, err
	}
	return true, nil
}

// publish emits an event through the configured broker, a no-op when none
// is configured.
func (e *Executor) publish(node string, typ observability.EventType, message string) {
	if e.events == nil {
		return
	}
	e.events.Publish(&observability.Event{
		Type:     typ,
		Pipeline: e.pipeline,
		Node:     node,
		Message:  message,
	})
}

func (e *Executor) policyFor(handle dag.NodeHandle) errmgr.Policy {
	if p, ok := e.policies[handle]; ok {
		return p
	}
	return errmgr.LogAndContinue
}

// outputsFor groups a node's outgoing edges by the port they leave from,
// plus a flat slice of every channel leaving the node, for barrier fanout.
func (e *Executor) outputsFor(handle dag.NodeHandle) outputs {
	byPort := make(map[dag.PortHandle][]chan types.ExecutorOperation)
	var all []chan types.ExecutorOperation
	for _, edge := range e.built.Edges {
		if edge.From.Node != handle {
			continue
		}
		ch := e.channels[edge]
		byPort[edge.From.Port] = append(byPort[edge.From.Port], ch)
		all = append(all, ch)
	}
	return outputs{byPort: byPort, all: all}
}

func (e *Executor) inputsFor(handle dag.NodeHandle) []inputEdge {
	var edges []inputEdge
	for _, edge := range e.built.Edges {
		if edge.To.Node != handle {
			continue
		}
		edges = append(edges, inputEdge{port: edge.To.Port, ch: e.channels[edge]})
	}
	return edges
}

// Run starts every node and blocks until every node has terminated or one
// node returns a fatal error, in which case ctx is used to best-effort
// signal the remaining nodes are no longer needed (they still drain their
// input channels until upstream sources close out naturally).
func (e *Executor) Run(ctx context.Context) error {
	logger := log.WithComponent("executor").With().Str("pipeline", e.pipeline).Logger()
	metrics.RegisterComponent("executor", true, "running: "+e.pipeline)

	var wg sync.WaitGroup
	errCh := make(chan error, len(e.built.Nodes))

	for handle, n := range e.built.Nodes {
		handle, n := handle, n
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			switch n.Kind {
			case dag.KindSource:
				err = e.runSource(handle, n)
			case dag.KindProcessor:
				err = e.runProcessor(handle, n)
			case dag.KindSink:
				err = e.runSink(handle, n)
			}
			if err != nil {
				logger.Error().Str("node", string(handle)).Err(err).Msg("node terminated with error")
				e.publish(string(handle), observability.EventNodeError, err.Error())
			}
			errCh <- err
		}()
	}

	go func() {
		wg.Wait()
		close(errCh)
	}()

	var first error
	for err := range errCh {
		if err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		metrics.UpdateComponent("executor", false, first.Error())
	} else {
		metrics.UpdateComponent("executor", true, "finished: "+e.pipeline)
	}
	return first
}

func (e *Executor) runSource(handle dag.NodeHandle, n *dag.BuiltNode) error {
	fw := &sourceForwarder{out: e.outputsFor(handle)}
	var resumeFrom *types.Epoch
	if epoch, ok := e.built.ResumeFrom[handle]; ok {
		resumeFrom = epoch
	}
	if err := n.Source.Run(fw, resumeFrom); err != nil {
		return fmt.Errorf("source %s: %w", handle, err)
	}
	fw.out.broadcast(types.TerminateMessage())
	return nil
}

func (e *Executor) runProcessor(handle dag.NodeHandle, n *dag.BuiltNode) error {
	mgr := errmgr.New(e.pipeline, string(handle), e.policyFor(handle))
	fw := &processorForwarder{out: e.outputsFor(handle)}
	edges := e.inputsFor(handle)

	h := handlers{
		onOp: func(fromPort dag.PortHandle, epoch types.Epoch, op types.Operation) error {
			fw.setEpoch(epoch)
			return mgr.Handle(n.Processor.Process(fromPort, op, fw))
		},
		onCommit: func(epoch types.Epoch) error {
			timer := metrics.NewTimer()
			if err := n.Processor.Commit(epoch); err != nil {
				return fmt.Errorf("processor %s commit epoch %d: %w", handle, epoch, err)
			}
			timer.ObserveDurationVec(metrics.CommitDuration, e.pipeline, string(handle))
			metrics.DAGEpochCurrent.WithLabelValues(e.pipeline).Set(float64(epoch))
			e.publish(string(handle), observability.EventEpochCommitted, fmt.Sprintf("epoch %d", epoch))
			fw.out.broadcast(types.CommitMessage(epoch))
			return nil
		},
		onTerminate: func() error {
			if err := n.Processor.OnTerminate(); err != nil {
				return fmt.Errorf("processor %s terminate: %w", handle, err)
			}
			e.publish(string(handle), observability.EventNodeTerminated, "")
			fw.out.broadcast(types.TerminateMessage())
			return nil
		},
		onSnapshottingDone: func(connectionName string) error {
			e.publish(string(handle), observability.EventSnapshotDone, connectionName)
			fw.out.broadcast(types.SnapshottingDoneMessage(connectionName))
			return nil
		},
	}
	return runReceiverLoop(edges, h)
}

func (e *Executor) runSink(handle dag.NodeHandle, n *dag.BuiltNode) error {
	mgr := errmgr.New(e.pipeline, string(handle), e.policyFor(handle))
	edges := e.inputsFor(handle)

	h := handlers{
		onOp: func(fromPort dag.PortHandle, epoch types.Epoch, op types.Operation) error {
			return mgr.Handle(n.Sink.Process(fromPort, op))
		},
		onCommit: func(epoch types.Epoch) error {
			timer := metrics.NewTimer()
			if err := n.Sink.Commit(epoch); err != nil {
				return fmt.Errorf("sink %s commit epoch %d: %w", handle, epoch, err)
			}
			timer.ObserveDurationVec(metrics.CommitDuration, e.pipeline, string(handle))
			e.publish(string(handle), observability.EventEpochCommitted, fmt.Sprintf("epoch %d", epoch))
			recorded, err := e.noteSinkCommit(epoch)
			if err != nil {
				return err
			}
			if recorded {
				e.publish(string(handle), observability.EventCheckpointWritten, fmt.Sprintf("epoch %d", epoch))
			}
			return nil
		},
		onTerminate: func() error {
			if err := n.Sink.OnTerminate(); err != nil {
				return err
			}
			e.publish(string(handle), observability.EventNodeTerminated, "")
			return nil
		},
		onSnapshottingDone: func(connectionName string) error {
			if err := n.Sink.OnSourceSnapshottingDone(); err != nil {
				return err
			}
			e.publish(string(handle), observability.EventSnapshotDone, connectionName)
			return nil
		},
	}
	return runReceiverLoop(edges, h)
}
