package dag

import (
	"fmt"
	"testing"

	"github.com/cuemby/weir/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeSource struct{}

func (fakeSource) CanStartFrom(epoch types.Epoch) (bool, error) { return true, nil }
func (fakeSource) Run(fw SourceForwarder, resumeFrom *types.Epoch) error { return nil }

type fakeSourceFactory struct{ schema types.Schema }

func (f *fakeSourceFactory) OutputPorts() []PortHandle { return []PortHandle{0} }
func (f *fakeSourceFactory) OutputSchema(port PortHandle) (types.Schema, error) {
	return f.schema, nil
}
func (f *fakeSourceFactory) Build(outputSchemas map[PortHandle]types.Schema) (Source, error) {
	return fakeSource{}, nil
}

type passthroughProcessorFactory struct{}

func (f *passthroughProcessorFactory) InputPorts() []PortHandle  { return []PortHandle{0} }
func (f *passthroughProcessorFactory) OutputPorts() []PortHandle { return []PortHandle{0} }
func (f *passthroughProcessorFactory) OutputSchema(port PortHandle, inputSchemas map[PortHandle]types.Schema) (types.Schema, error) {
	s, ok := inputSchemas[0]
	if !ok {
		return types.Schema{}, fmt.Errorf("missing input schema")
	}
	return s, nil
}
func (f *passthroughProcessorFactory) Build(inputSchemas, outputSchemas map[PortHandle]types.Schema) (Processor, error) {
	return nil, nil
}

type rejectingSinkFactory struct{}

func (f *rejectingSinkFactory) InputPorts() []PortHandle { return []PortHandle{0} }
func (f *rejectingSinkFactory) Prepare(inputSchemas map[PortHandle]types.Schema) error {
	if _, ok := inputSchemas[0]; !ok {
		return fmt.Errorf("no input schema")
	}
	return nil
}
func (f *rejectingSinkFactory) Build(inputSchemas map[PortHandle]types.Schema) (Sink, error) {
	return nil, nil
}

func testSchema() types.Schema {
	return types.Schema{ID: "s", Version: 1, Fields: []types.FieldDefinition{{Name: "a", Type: types.FieldTypeUInt}}}
}

func TestPrepareLinearPipeline(t *testing.T) {
	d := New()
	require.NoError(t, d.AddSource("src", &fakeSourceFactory{schema: testSchema()}))
	require.NoError(t, d.AddProcessor("proc", &passthroughProcessorFactory{}))
	require.NoError(t, d.AddSink("sink", &rejectingSinkFactory{}))

	require.NoError(t, d.Connect(Endpoint{"src", 0}, Endpoint{"proc", 0}))
	require.NoError(t, d.Connect(Endpoint{"proc", 0}, Endpoint{"sink", 0}))

	schemas, err := d.Prepare()
	require.NoError(t, err)
	require.Equal(t, testSchema(), schemas[Endpoint{"proc", 0}])
}

func TestConnectRejectsUnknownPort(t *testing.T) {
	d := New()
	require.NoError(t, d.AddSource("src", &fakeSourceFactory{schema: testSchema()}))
	require.NoError(t, d.AddSink("sink", &rejectingSinkFactory{}))

	err := d.Connect(Endpoint{"src", 9}, Endpoint{"sink", 0})
	require.ErrorIs(t, err, types.ErrInvalidPortHandle)
}

func TestConnectRejectsDuplicateEdge(t *testing.T) {
	d := New()
	require.NoError(t, d.AddSource("src", &fakeSourceFactory{schema: testSchema()}))
	require.NoError(t, d.AddSink("sink", &rejectingSinkFactory{}))

	require.NoError(t, d.Connect(Endpoint{"src", 0}, Endpoint{"sink", 0}))
	err := d.Connect(Endpoint{"src", 0}, Endpoint{"sink", 0})
	require.Error(t, err)
}

func TestPrepareDetectsCycle(t *testing.T) {
	d := New()
	require.NoError(t, d.AddProcessor("a", &passthroughProcessorFactory{}))
	require.NoError(t, d.AddProcessor("b", &passthroughProcessorFactory{}))
	require.NoError(t, d.Connect(Endpoint{"a", 0}, Endpoint{"b", 0}))
	require.NoError(t, d.Connect(Endpoint{"b", 0}, Endpoint{"a", 0}))

	_, err := d.Prepare()
	require.Error(t, err)
}

type checkpointStub struct {
	epoch types.Epoch
	ok    bool
}

func (c checkpointStub) LastCommittedEpoch(pipeline string) (types.Epoch, bool, error) {
	return c.epoch, c.ok, nil
}

func TestBuildConsultsCheckpointForResume(t *testing.T) {
	d := New()
	require.NoError(t, d.AddSource("src", &fakeSourceFactory{schema: testSchema()}))
	require.NoError(t, d.AddSink("sink", &rejectingSinkFactory{}))
	require.NoError(t, d.Connect(Endpoint{"src", 0}, Endpoint{"sink", 0}))

	built, err := d.Build("pipeline", checkpointStub{epoch: 5, ok: true})
	require.NoError(t, err)
	require.Len(t, built.Nodes, 2)
	require.NotNil(t, built.ResumeFrom["src"])
	require.Equal(t, types.Epoch(5), *built.ResumeFrom["src"])
}
