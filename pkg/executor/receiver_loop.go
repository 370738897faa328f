package executor

import (
	"errors"
	"reflect"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/types"
)

// errStuckBarrier reports a receiver loop with no edge left to select on
// and no terminated-all condition either — a bug in the barrier bookkeeping
// above, never a reachable steady state.
var errStuckBarrier = errors.New("executor: receiver loop stuck: no selectable edges but not all terminated")

// inputEdge is one input channel a receiver loop selects over, tagged with
// the port it feeds.
type inputEdge struct {
	port dag.PortHandle
	ch   chan types.ExecutorOperation
}

// handlers are the callbacks a receiver loop invokes; shared by processor
// and sink node runners, which differ only in what they do with each event.
type handlers struct {
	onOp               func(fromPort dag.PortHandle, epoch types.Epoch, op types.Operation) error
	onCommit           func(epoch types.Epoch) error
	onTerminate        func() error
	onSnapshottingDone func(connectionName string) error
}

// runReceiverLoop implements the cooperative epoch-barrier loop shared by
// every processor and sink: select across every input edge that has not
// yet delivered Commit for the current epoch or Terminate; once every
// non-terminated edge has committed, fire onCommit and reopen the full
// set; once every edge has terminated, fire onTerminate and return.
func runReceiverLoop(edges []inputEdge, h handlers) error {
	n := len(edges)
	terminated := make([]bool, n)
	committed := make([]bool, n)
	committedCount := 0
	var pendingEpoch types.Epoch

	activeCount := func() int {
		c := 0
		for _, t := range terminated {
			if !t {
				c++
			}
		}
		return c
	}
	allTerminated := func() bool {
		for _, t := range terminated {
			if !t {
				return false
			}
		}
		return true
	}
	// fireIfBarrierComplete re-checks the commit condition against the
	// current active set. A terminate can shrink activeCount() below
	// committedCount after that count was latched by an earlier commit on
	// a different edge; without rechecking here, that commit never fires.
	// pendingEpoch (set by the commit that last changed committedCount) is
	// used rather than whatever message triggered this check, since a
	// terminate message carries no meaningful epoch of its own.
	fireIfBarrierComplete := func() error {
		active := activeCount()
		if active == 0 || committedCount != active {
			return nil
		}
		if err := h.onCommit(pendingEpoch); err != nil {
			return err
		}
		for j := range committed {
			committed[j] = false
		}
		committedCount = 0
		return nil
	}

	for {
		var cases []reflect.SelectCase
		var idx []int
		for i, e := range edges {
			if terminated[i] || committed[i] {
				continue
			}
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(e.ch)})
			idx = append(idx, i)
		}
		if len(cases) == 0 {
			if allTerminated() {
				return nil
			}
			// Every active edge has already committed for this epoch, which
			// means fireIfBarrierComplete should already have fired and
			// reopened the edge set below. Reaching here with an active,
			// non-terminated, non-selectable edge means the barrier
			// bookkeeping is wrong, not that the loop is done.
			return errStuckBarrier
		}

		chosen, recv, ok := reflect.Select(cases)
		i := idx[chosen]
		if !ok {
			terminated[i] = true
			if allTerminated() {
				return h.onTerminate()
			}
			if err := fireIfBarrierComplete(); err != nil {
				return err
			}
			continue
		}

		msg := recv.Interface().(types.ExecutorOperation)
		switch msg.Kind {
		case types.ExecOpKindOp:
			if err := h.onOp(edges[i].port, msg.Epoch, msg.Op); err != nil {
				return err
			}
		case types.ExecOpKindCommit:
			committed[i] = true
			committedCount++
			pendingEpoch = msg.Epoch
			if err := fireIfBarrierComplete(); err != nil {
				return err
			}
		case types.ExecOpKindSnapshottingDone:
			if err := h.onSnapshottingDone(msg.ConnectionName); err != nil {
				return err
			}
		case types.ExecOpKindTerminate:
			terminated[i] = true
			if allTerminated() {
				return h.onTerminate()
			}
			if err := fireIfBarrierComplete(); err != nil {
				return err
			}
		}
	}
}
