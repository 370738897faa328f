package executor

import (
	"fmt"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/types"
)

// outputs fans a node's output ports out to every channel bound to an edge
// leaving that port, plus a flat view of every outbound channel used for
// node-wide barriers (Commit, SnapshottingDone, Terminate).
type outputs struct {
	byPort map[dag.PortHandle][]chan types.ExecutorOperation
	all    []chan types.ExecutorOperation
}

func (o outputs) sendOp(port dag.PortHandle, msg types.ExecutorOperation) error {
	chans, ok := o.byPort[port]
	if !ok {
		return fmt.Errorf("%w: no outgoing edge on port %d", types.ErrInvalidPortHandle, port)
	}
	for _, ch := range chans {
		ch <- msg
	}
	return nil
}

func (o outputs) broadcast(msg types.ExecutorOperation) {
	for _, ch := range o.all {
		ch <- msg
	}
}

// sourceForwarder is the dag.SourceForwarder a source node's Run loop uses
// to emit data, commit epochs and signal the end of its initial snapshot.
type sourceForwarder struct {
	out outputs
}

func (f *sourceForwarder) Send(port dag.PortHandle, op types.Operation, epoch types.Epoch) error {
	return f.out.sendOp(port, types.OpMessage(epoch, op))
}

func (f *sourceForwarder) Commit(epoch types.Epoch) error {
	f.out.broadcast(types.CommitMessage(epoch))
	return nil
}

func (f *sourceForwarder) SnapshottingDone() error {
	f.out.broadcast(types.SnapshottingDoneMessage(""))
	return nil
}

// processorForwarder is the dag.ProcessorForwarder a processor's Process
// call uses to emit onto its own output ports. Commit and Terminate are not
// part of this interface: the executor drives those itself once the
// receiver loop's barrier fires, after the processor's own Commit/
// OnTerminate hook returns successfully.
type processorForwarder struct {
	out   outputs
	epoch types.Epoch
}

func (f *processorForwarder) Send(port dag.PortHandle, op types.Operation) error {
	return f.out.sendOp(port, types.OpMessage(f.epoch, op))
}

// setEpoch records the epoch of the operation currently being processed, so
// Send can stamp it onto every downstream message. Only the node's own
// runner goroutine calls this, immediately before each Process call.
func (f *processorForwarder) setEpoch(epoch types.Epoch) { f.epoch = epoch }
