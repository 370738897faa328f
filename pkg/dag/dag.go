// Package dag builds and validates the typed dataflow graph that
// pkg/executor runs: sources, processors and sinks connected through typed
// ports, with a prepare pass that propagates schemas across edges before
// any node is instantiated.
package dag

import (
	"fmt"

	"github.com/cuemby/weir/pkg/types"
)

// NodeHandle names a node uniquely within a Dag.
type NodeHandle string

// PortHandle names a port on a node.
type PortHandle uint16

// Endpoint is one end of an Edge: a node and one of its ports.
type Endpoint struct {
	Node NodeHandle
	Port PortHandle
}

func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.Node, e.Port) }

// Edge connects a declared output port to a declared input port.
type Edge struct {
	From Endpoint
	To   Endpoint
}

// NodeKind tags the variant of a node registered in a Dag.
type NodeKind int

const (
	KindSource NodeKind = iota
	KindProcessor
	KindSink
)

// node holds a registered factory plus the kind-erased port information the
// Dag needs for edge validation and the prepare pass, independent of which
// concrete factory interface it implements.
type node struct {
	handle      NodeHandle
	kind        NodeKind
	outputPorts []PortHandle
	inputPorts  []PortHandle
	factory     any
}

// Dag is a DAG under construction: nodes and edges, not yet built into
// runnable Source/Processor/Sink instances.
type Dag struct {
	nodes map[NodeHandle]*node
	edges []Edge
}

// New returns an empty Dag.
func New() *Dag {
	return &Dag{nodes: make(map[NodeHandle]*node)}
}

// AddSource registers a source node with its declared output ports.
func (d *Dag) AddSource(handle NodeHandle, factory SourceFactory) error {
	if _, exists := d.nodes[handle]; exists {
		return fmt.Errorf("node %q already registered", handle)
	}
	d.nodes[handle] = &node{handle: handle, kind: KindSource, outputPorts: factory.OutputPorts(), factory: factory}
	return nil
}

// AddProcessor registers a processor node with its declared input and
// output ports.
func (d *Dag) AddProcessor(handle NodeHandle, factory ProcessorFactory) error {
	if _, exists := d.nodes[handle]; exists {
		return fmt.Errorf("node %q already registered", handle)
	}
	d.nodes[handle] = &node{
		handle:      handle,
		kind:        KindProcessor,
		inputPorts:  factory.InputPorts(),
		outputPorts: factory.OutputPorts(),
		factory:     factory,
	}
	return nil
}

// AddSink registers a sink node with its declared input ports.
func (d *Dag) AddSink(handle NodeHandle, factory SinkFactory) error {
	if _, exists := d.nodes[handle]; exists {
		return fmt.Errorf("node %q already registered", handle)
	}
	d.nodes[handle] = &node{handle: handle, kind: KindSink, inputPorts: factory.InputPorts(), factory: factory}
	return nil
}

// Connect declares an edge from a source/processor output port to a
// processor/sink input port. Both endpoints must name registered nodes and
// declared ports, and the edge must not already exist.
func (d *Dag) Connect(from, to Endpoint) error {
	srcNode, ok := d.nodes[from.Node]
	if !ok {
		return fmt.Errorf("%w: unknown source node %q", types.ErrInvalidPortHandle, from.Node)
	}
	dstNode, ok := d.nodes[to.Node]
	if !ok {
		return fmt.Errorf("%w: unknown target node %q", types.ErrInvalidPortHandle, to.Node)
	}
	if !containsPort(srcNode.outputPorts, from.Port) {
		return fmt.Errorf("%w: %s has no output port %d", types.ErrInvalidPortHandle, from.Node, from.Port)
	}
	if !containsPort(dstNode.inputPorts, to.Port) {
		return fmt.Errorf("%w: %s has no input port %d", types.ErrInvalidPortHandle, to.Node, to.Port)
	}
	edge := Edge{From: from, To: to}
	for _, e := range d.edges {
		if e == edge {
			return fmt.Errorf("edge %s -> %s already exists", from, to)
		}
	}
	d.edges = append(d.edges, edge)
	return nil
}

func containsPort(ports []PortHandle, p PortHandle) bool {
	for _, q := range ports {
		if q == p {
			return true
		}
	}
	return false
}

// Edges returns the registered edges.
func (d *Dag) Edges() []Edge { return d.edges }

// NodeHandles returns every registered node handle.
func (d *Dag) NodeHandles() []NodeHandle {
	out := make([]NodeHandle, 0, len(d.nodes))
	for h := range d.nodes {
		out = append(out, h)
	}
	return out
}

// EdgesFrom returns edges whose source is handle.
func (d *Dag) EdgesFrom(handle NodeHandle) []Edge {
	var out []Edge
	for _, e := range d.edges {
		if e.From.Node == handle {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns edges whose target is handle.
func (d *Dag) EdgesTo(handle NodeHandle) []Edge {
	var out []Edge
	for _, e := range d.edges {
		if e.To.Node == handle {
			out = append(out, e)
		}
	}
	return out
}
