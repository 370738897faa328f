package operator

import "github.com/cuemby/weir/pkg/dag"

// Single-input/single-output operators (Selection, Projection, Window,
// Table) all use port 0 on both sides. Product uses two input ports, one
// per joined side.
const (
	PortDefault dag.PortHandle = 0
	PortLeft    dag.PortHandle = 0
	PortRight   dag.PortHandle = 1
)

func singlePort() []dag.PortHandle { return []dag.PortHandle{PortDefault} }
func twoPorts() []dag.PortHandle   { return []dag.PortHandle{PortLeft, PortRight} }
