package dag

import (
	"fmt"

	"github.com/cuemby/weir/pkg/types"
)

// Prepare computes each edge's schema in topological order, asking source
// factories directly and processor factories via OutputSchema once all of
// a processor's input schemas are known. It fails build-fatally
// (InvalidPortHandle, SchemaMismatch) if a target port would receive two
// different schemas from different upstream edges, or a factory rejects an
// arriving schema.
//
// The result maps each Endpoint (a node's specific port) to its schema.
func (d *Dag) Prepare() (map[Endpoint]types.Schema, error) {
	schemas := make(map[Endpoint]types.Schema)

	order, err := d.topoSort()
	if err != nil {
		return nil, err
	}

	for _, handle := range order {
		n := d.nodes[handle]
		switch n.kind {
		case KindSource:
			factory := n.factory.(SourceFactory)
			for _, port := range n.outputPorts {
				schema, err := factory.OutputSchema(port)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", handle, err)
				}
				schemas[Endpoint{Node: handle, Port: port}] = schema
			}

		case KindProcessor:
			factory := n.factory.(ProcessorFactory)
			inputSchemas, err := d.collectInputSchemas(handle, n.inputPorts, schemas)
			if err != nil {
				return nil, err
			}
			for _, port := range n.outputPorts {
				schema, err := factory.OutputSchema(port, inputSchemas)
				if err != nil {
					return nil, fmt.Errorf("%w: %s port %d: %v", types.ErrSchemaMismatch, handle, port, err)
				}
				schemas[Endpoint{Node: handle, Port: port}] = schema
			}

		case KindSink:
			factory := n.factory.(SinkFactory)
			inputSchemas, err := d.collectInputSchemas(handle, n.inputPorts, schemas)
			if err != nil {
				return nil, err
			}
			if err := factory.Prepare(inputSchemas); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", types.ErrSchemaMismatch, handle, err)
			}
		}
	}

	return schemas, nil
}

// collectInputSchemas resolves the schema arriving on each of a node's
// input ports, failing if an edge's source schema isn't known yet (not
// possible after a correct topo sort) or if two edges deliver conflicting
// schemas to the same port.
func (d *Dag) collectInputSchemas(handle NodeHandle, inputPorts []PortHandle, schemas map[Endpoint]types.Schema) (map[PortHandle]types.Schema, error) {
	out := make(map[PortHandle]types.Schema, len(inputPorts))
	for _, e := range d.EdgesTo(handle) {
		upstream, ok := schemas[e.From]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no schema computed yet for upstream %s", types.ErrInvalidPortHandle, e.From, e.From)
		}
		if existing, ok := out[e.To.Port]; ok {
			if !schemasEqual(existing, upstream) {
				return nil, fmt.Errorf("%w: %s port %d receives conflicting schemas", types.ErrSchemaMismatch, handle, e.To.Port)
			}
			continue
		}
		out[e.To.Port] = upstream
	}
	return out, nil
}

func schemasEqual(a, b types.Schema) bool {
	if a.ID != b.ID || a.Version != b.Version || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}

// topoSort orders nodes so every node appears after all nodes feeding its
// input ports, failing with a cycle error if the graph isn't a DAG.
func (d *Dag) topoSort() ([]NodeHandle, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[NodeHandle]int, len(d.nodes))
	var order []NodeHandle

	var visit func(h NodeHandle) error
	visit = func(h NodeHandle) error {
		switch color[h] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("dag contains a cycle at node %q", h)
		}
		color[h] = gray
		for _, e := range d.EdgesTo(h) {
			if err := visit(e.From.Node); err != nil {
				return err
			}
		}
		color[h] = black
		order = append(order, h)
		return nil
	}

	for h := range d.nodes {
		if err := visit(h); err != nil {
			return nil, err
		}
	}
	return order, nil
}
