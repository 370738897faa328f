package executor

import (
	"testing"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/types"
	"github.com/stretchr/testify/require"
)

// TestReceiverLoopFiresCommitWhenTerminateShrinksActiveSet covers a
// two-edge barrier where edge 0 commits epoch 5 first, and only then does
// edge 1 terminate instead of also committing. The commit latched on edge 0
// must still fire once edge 1's termination makes it the only active edge.
func TestReceiverLoopFiresCommitWhenTerminateShrinksActiveSet(t *testing.T) {
	chA := make(chan types.ExecutorOperation, 2)
	chB := make(chan types.ExecutorOperation, 2)
	edges := []inputEdge{{port: 0, ch: chA}, {port: 1, ch: chB}}

	chA <- types.CommitMessage(5)
	chB <- types.TerminateMessage()
	chA <- types.TerminateMessage()

	var commits []types.Epoch
	terminated := false
	err := runReceiverLoop(edges, handlers{
		onOp: func(dag.PortHandle, types.Epoch, types.Operation) error { return nil },
		onCommit: func(epoch types.Epoch) error {
			commits = append(commits, epoch)
			return nil
		},
		onTerminate: func() error {
			terminated = true
			return nil
		},
		onSnapshottingDone: func(string) error { return nil },
	})

	require.NoError(t, err)
	require.Equal(t, []types.Epoch{5}, commits, "edge 0's commit must fire once edge 1 terminates out of the barrier")
	require.True(t, terminated)
}

// TestReceiverLoopCommitsEachEpochThenTerminates is the ordinary, no-race
// path: both edges commit every epoch in lockstep before terminating.
func TestReceiverLoopCommitsEachEpochThenTerminates(t *testing.T) {
	chA := make(chan types.ExecutorOperation, 4)
	chB := make(chan types.ExecutorOperation, 4)
	edges := []inputEdge{{port: 0, ch: chA}, {port: 1, ch: chB}}

	chA <- types.CommitMessage(0)
	chB <- types.CommitMessage(0)
	chA <- types.CommitMessage(1)
	chB <- types.CommitMessage(1)
	chA <- types.TerminateMessage()
	chB <- types.TerminateMessage()

	var commits []types.Epoch
	terminated := false
	err := runReceiverLoop(edges, handlers{
		onOp: func(dag.PortHandle, types.Epoch, types.Operation) error { return nil },
		onCommit: func(epoch types.Epoch) error {
			commits = append(commits, epoch)
			return nil
		},
		onTerminate: func() error {
			terminated = true
			return nil
		},
		onSnapshottingDone: func(string) error { return nil },
	})

	require.NoError(t, err)
	require.Equal(t, []types.Epoch{0, 1}, commits)
	require.True(t, terminated)
}
