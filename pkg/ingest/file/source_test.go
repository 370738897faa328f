package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/weir/pkg/dag"
	"github.com/cuemby/weir/pkg/operator"
	"github.com/cuemby/weir/pkg/types"
)

type recordingForwarder struct {
	sent      []types.Operation
	commits   []types.Epoch
	snapshotted bool
}

func (f *recordingForwarder) Send(port dag.PortHandle, op types.Operation, epoch types.Epoch) error {
	f.sent = append(f.sent, op)
	return nil
}

func (f *recordingForwarder) Commit(epoch types.Epoch) error {
	f.commits = append(f.commits, epoch)
	return nil
}

func (f *recordingForwarder) SnapshottingDone() error {
	f.snapshotted = true
	return nil
}

func testSchema() types.Schema {
	return types.Schema{
		ID:      "orders",
		Version: 1,
		Fields: []types.FieldDefinition{
			{Name: "id", Type: types.FieldTypeUInt},
			{Name: "customer", Type: types.FieldTypeString},
			{Name: "total", Type: types.FieldTypeFloat},
			{Name: "note", Type: types.FieldTypeString, Nullable: true},
		},
		PrimaryIndex: []int{0},
	}
}

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.ndjson")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	return path
}

func TestSourceRunEmitsOneInsertPerLine(t *testing.T) {
	path := writeLines(t,
		`{"id":1,"customer":"acme","total":12.5,"note":null}`,
		`{"id":2,"customer":"globex","total":4.25,"note":"rush"}`,
	)

	src := &Source{path: path, schema: testSchema()}
	fw := &recordingForwarder{}
	if err := src.Run(fw, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fw.sent) != 2 {
		t.Fatalf("want 2 operations, got %d", len(fw.sent))
	}
	if len(fw.commits) != 2 {
		t.Fatalf("want 2 commits, got %d", len(fw.commits))
	}
	if !fw.snapshotted {
		t.Fatal("want SnapshottingDone called")
	}

	first := fw.sent[0]
	if first.Type != types.OpInsert {
		t.Fatalf("want insert, got %v", first.Type)
	}
	rec := first.New
	if rec.Values[0].UIntVal != 1 {
		t.Errorf("id = %v, want 1", rec.Values[0].UIntVal)
	}
	if rec.Values[1].StrVal != "acme" {
		t.Errorf("customer = %q, want acme", rec.Values[1].StrVal)
	}
	if rec.Values[3].Type != types.FieldTypeNull {
		t.Errorf("note should decode to null, got %v", rec.Values[3].Type)
	}

	second := fw.sent[1].New
	if second.Values[3].StrVal != "rush" {
		t.Errorf("note = %q, want rush", second.Values[3].StrVal)
	}
}

func TestSourceRunRejectsMissingRequiredField(t *testing.T) {
	path := writeLines(t, `{"id":1,"total":12.5}`)

	src := &Source{path: path, schema: testSchema()}
	fw := &recordingForwarder{}
	if err := src.Run(fw, nil); err == nil {
		t.Fatal("want error for missing non-nullable customer field")
	}
}

func TestSourceCanStartFromAlwaysFalse(t *testing.T) {
	src := &Source{path: "unused", schema: testSchema()}
	ok, err := src.CanStartFrom(types.Epoch(5))
	if err != nil {
		t.Fatalf("CanStartFrom: %v", err)
	}
	if ok {
		t.Fatal("file source must never claim it can resume")
	}
}

func TestFactoryBuildUsesConfiguredSchemaAndPort(t *testing.T) {
	schema := testSchema()
	factory := &Factory{Path: "orders.ndjson", Schema: schema}

	ports := factory.OutputPorts()
	if len(ports) != 1 || ports[0] != operator.PortDefault {
		t.Fatalf("want single default output port, got %v", ports)
	}

	out, err := factory.OutputSchema(operator.PortDefault)
	if err != nil {
		t.Fatalf("OutputSchema: %v", err)
	}
	if out.ID != schema.ID {
		t.Errorf("schema ID = %q, want %q", out.ID, schema.ID)
	}

	src, err := factory.Build(map[dag.PortHandle]types.Schema{operator.PortDefault: schema})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s, ok := src.(*Source)
	if !ok {
		t.Fatalf("Build returned %T, want *Source", src)
	}
	if s.path != "orders.ndjson" {
		t.Errorf("path = %q, want orders.ndjson", s.path)
	}
}
