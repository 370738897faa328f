package dag

import "github.com/cuemby/weir/pkg/types"

// SourceFactory describes a source node before it is built: the output
// ports it offers and the schema each would produce.
type SourceFactory interface {
	OutputPorts() []PortHandle
	OutputSchema(port PortHandle) (types.Schema, error)
	Build(outputSchemas map[PortHandle]types.Schema) (Source, error)
}

// ProcessorFactory describes a processor node before it is built: its
// input and output ports, and the output schema it derives from its input
// schemas. Returning an error from OutputSchema is how a processor rejects
// an incompatible upstream schema during the prepare pass.
type ProcessorFactory interface {
	InputPorts() []PortHandle
	OutputPorts() []PortHandle
	OutputSchema(port PortHandle, inputSchemas map[PortHandle]types.Schema) (types.Schema, error)
	Build(inputSchemas, outputSchemas map[PortHandle]types.Schema) (Processor, error)
}

// SinkFactory describes a sink node before it is built: its input ports
// and a chance to validate the schemas arriving on them.
type SinkFactory interface {
	InputPorts() []PortHandle
	Prepare(inputSchemas map[PortHandle]types.Schema) error
	Build(inputSchemas map[PortHandle]types.Schema) (Sink, error)
}

// Source emits operations on its output ports until terminated.
type Source interface {
	// CanStartFrom reports whether the source can resume from a previously
	// checkpointed epoch rather than starting fresh.
	CanStartFrom(epoch types.Epoch) (bool, error)
	// Run drives the source; it emits ExecutorOperations on fw until the
	// source naturally terminates and Run returns.
	Run(fw SourceForwarder, resumeFrom *types.Epoch) error
}

// Processor consumes operations on its input ports and emits on its output
// ports.
type Processor interface {
	Process(fromPort PortHandle, op types.Operation, fw ProcessorForwarder) error
	Commit(epoch types.Epoch) error
	OnTerminate() error
}

// Sink consumes operations on its input ports and persists them.
type Sink interface {
	Process(fromPort PortHandle, op types.Operation) error
	Commit(epoch types.Epoch) error
	OnSourceSnapshottingDone() error
	OnTerminate() error
}

// SourceForwarder is how a Source emits operations, commits and snapshot
// markers onto its output ports.
type SourceForwarder interface {
	Send(port PortHandle, op types.Operation, epoch types.Epoch) error
	Commit(epoch types.Epoch) error
	SnapshottingDone() error
}

// ProcessorForwarder is how a Processor emits onto its output ports.
type ProcessorForwarder interface {
	Send(port PortHandle, op types.Operation) error
}
