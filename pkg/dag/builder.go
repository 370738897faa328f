package dag

import (
	"fmt"

	"github.com/cuemby/weir/pkg/types"
)

// CheckpointReader is consulted during Build to ask whether a source can
// resume from the pipeline's latest durably committed epoch.
type CheckpointReader interface {
	LastCommittedEpoch(pipeline string) (types.Epoch, bool, error)
}

// BuiltNode is one constructed runtime node plus its port wiring.
type BuiltNode struct {
	Handle      NodeHandle
	Kind        NodeKind
	Source      Source
	Processor   Processor
	Sink        Sink
	InputPorts  []PortHandle
	OutputPorts []PortHandle
}

// BuilderDag is the result of Build: every node instantiated from its
// factory, plus the schemas and edges needed to wire the executor.
type BuilderDag struct {
	Nodes   map[NodeHandle]*BuiltNode
	Edges   []Edge
	Schemas map[Endpoint]types.Schema
	// ResumeFrom holds, per source node, the epoch it was told to resume
	// from, or nil if it starts fresh.
	ResumeFrom map[NodeHandle]*types.Epoch
}

// Build runs Prepare, then constructs concrete Source/Processor/Sink
// instances from every node's factory. pipeline names the pipeline for
// checkpoint lookups; checkpoints may be nil, in which case every source
// starts fresh.
func (d *Dag) Build(pipeline string, checkpoints CheckpointReader) (*BuilderDag, error) {
	schemas, err := d.Prepare()
	if err != nil {
		return nil, err
	}

	var lastEpoch types.Epoch
	var haveCheckpoint bool
	if checkpoints != nil {
		lastEpoch, haveCheckpoint, err = checkpoints.LastCommittedEpoch(pipeline)
		if err != nil {
			return nil, fmt.Errorf("read checkpoint: %w", err)
		}
	}

	out := &BuilderDag{
		Nodes:      make(map[NodeHandle]*BuiltNode, len(d.nodes)),
		Edges:      d.edges,
		Schemas:    schemas,
		ResumeFrom: make(map[NodeHandle]*types.Epoch),
	}

	for handle, n := range d.nodes {
		built := &BuiltNode{Handle: handle, Kind: n.kind, InputPorts: n.inputPorts, OutputPorts: n.outputPorts}
		switch n.kind {
		case KindSource:
			factory := n.factory.(SourceFactory)
			outputSchemas := portSchemas(handle, n.outputPorts, schemas)
			src, err := factory.Build(outputSchemas)
			if err != nil {
				return nil, fmt.Errorf("build source %s: %w", handle, err)
			}
			built.Source = src

			if haveCheckpoint {
				canResume, err := src.CanStartFrom(lastEpoch)
				if err != nil {
					return nil, fmt.Errorf("source %s can_start_from: %w", handle, err)
				}
				if canResume {
					epoch := lastEpoch
					out.ResumeFrom[handle] = &epoch
				}
			}

		case KindProcessor:
			factory := n.factory.(ProcessorFactory)
			inputSchemas := portSchemas(handle, n.inputPorts, collectUpstream(d, handle, schemas))
			outputSchemas := portSchemas(handle, n.outputPorts, schemas)
			proc, err := factory.Build(inputSchemas, outputSchemas)
			if err != nil {
				return nil, fmt.Errorf("build processor %s: %w", handle, err)
			}
			built.Processor = proc

		case KindSink:
			factory := n.factory.(SinkFactory)
			inputSchemas := portSchemas(handle, n.inputPorts, collectUpstream(d, handle, schemas))
			sink, err := factory.Build(inputSchemas)
			if err != nil {
				return nil, fmt.Errorf("build sink %s: %w", handle, err)
			}
			built.Sink = sink
		}
		out.Nodes[handle] = built
	}

	return out, nil
}

func portSchemas(handle NodeHandle, ports []PortHandle, endpointSchemas map[Endpoint]types.Schema) map[PortHandle]types.Schema {
	out := make(map[PortHandle]types.Schema, len(ports))
	for _, p := range ports {
		if s, ok := endpointSchemas[Endpoint{Node: handle, Port: p}]; ok {
			out[p] = s
		}
	}
	return out
}

// collectUpstream re-derives the per-input-port schema map for handle from
// the already-computed endpoint schemas, keyed by the node's own port
// numbers rather than the upstream endpoint.
func collectUpstream(d *Dag, handle NodeHandle, schemas map[Endpoint]types.Schema) map[Endpoint]types.Schema {
	out := make(map[Endpoint]types.Schema)
	for _, e := range d.EdgesTo(handle) {
		out[Endpoint{Node: handle, Port: e.To.Port}] = schemas[e.From]
	}
	return out
}
