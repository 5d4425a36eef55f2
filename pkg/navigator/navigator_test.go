package navigator

import (
	"errors"
	"testing"

	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/model"
	"github.com/gofhir/hl7v2/specs"
)

func newMessage(t *testing.T, structure string) *model.Message {
	t.Helper()
	m, err := model.New(specs.Default(), "2.5", structure)
	if err != nil {
		t.Fatalf("model.New(%s) failed: %v", structure, err)
	}
	return m
}

func place(t *testing.T, nav *Navigator, names ...string) []*model.Segment {
	t.Helper()
	out := make([]*model.Segment, 0, len(names))
	for _, name := range names {
		seg, err := nav.Next(name)
		if err != nil {
			t.Fatalf("Next(%s) failed: %v", name, err)
		}
		if seg.Name() != name {
			t.Fatalf("Next(%s) returned %s", name, seg.Name())
		}
		out = append(out, seg)
	}
	return out
}

func paths(segs []*model.Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Path()
	}
	return out
}

func TestNextNestedRepeatingGroups(t *testing.T) {
	m := newMessage(t, "ORU_R01")
	nav := New(m, false)

	segs := place(t, nav,
		"MSH", "PID", "PV1", "ORC", "OBR", "OBX", "OBX", "NTE",
		"OBR", "OBX", "PID", "OBR",
	)

	want := []string{
		"/MSH(0)",
		"/PATIENT_RESULT(0)/PATIENT(0)/PID(0)",
		"/PATIENT_RESULT(0)/PATIENT(0)/VISIT(0)/PV1(0)",
		"/PATIENT_RESULT(0)/ORDER_OBSERVATION(0)/ORC(0)",
		"/PATIENT_RESULT(0)/ORDER_OBSERVATION(0)/OBR(0)",
		"/PATIENT_RESULT(0)/ORDER_OBSERVATION(0)/OBSERVATION(0)/OBX(0)",
		"/PATIENT_RESULT(0)/ORDER_OBSERVATION(0)/OBSERVATION(1)/OBX(0)",
		"/PATIENT_RESULT(0)/ORDER_OBSERVATION(0)/OBSERVATION(1)/NTE(0)",
		"/PATIENT_RESULT(0)/ORDER_OBSERVATION(1)/OBR(0)",
		"/PATIENT_RESULT(0)/ORDER_OBSERVATION(1)/OBSERVATION(0)/OBX(0)",
		"/PATIENT_RESULT(1)/PATIENT(0)/PID(0)",
		"/PATIENT_RESULT(1)/ORDER_OBSERVATION(0)/OBR(0)",
	}
	got := paths(segs)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d placed at %s; want %s", i, got[i], want[i])
		}
	}
	if m.Count("PATIENT_RESULT") != 2 {
		t.Errorf("PATIENT_RESULT count = %d; want 2", m.Count("PATIENT_RESULT"))
	}
}

func TestNextRepeatsGroupPerRequiredSegment(t *testing.T) {
	m := newMessage(t, "ORU_R01")
	nav := New(m, false)
	place(t, nav, "MSH", "OBR")

	const n = 4
	for i := 0; i < n; i++ {
		place(t, nav, "OBX")
	}

	pr, _ := m.ChildGroup("PATIENT_RESULT", 0)
	oo, _ := pr.ChildGroup("ORDER_OBSERVATION", 0)
	if got := oo.Count("OBSERVATION"); got != n {
		t.Fatalf("OBSERVATION count = %d; want %d", got, n)
	}
	for _, s := range oo.GetAll("OBSERVATION") {
		if c := s.(*model.Group).Count("OBX"); c != 1 {
			t.Errorf("OBSERVATION(%d) has %d OBX", s.Rep(), c)
		}
	}
}

func TestNextRepeatingSegmentStays(t *testing.T) {
	m := newMessage(t, "ADT_A01")
	nav := New(m, false)
	segs := place(t, nav, "MSH", "EVN", "PID", "NK1", "NK1", "NK1", "PV1")

	if m.Count("NK1") != 3 {
		t.Errorf("NK1 count = %d; want 3", m.Count("NK1"))
	}
	if segs[5].Rep() != 2 {
		t.Errorf("third NK1 rep = %d; want 2", segs[5].Rep())
	}
	pos := nav.Position()
	if pos.Name != "PV1" || pos.Rep != 0 || !pos.Parent.IsRoot() {
		t.Errorf("Position() = %+v", pos)
	}
	if nav.Current() != segs[6] {
		t.Error("Current() should be the last placed segment")
	}
}

func TestNextNonstandardSegments(t *testing.T) {
	m := newMessage(t, "ADT_A01")
	nav := New(m, false)
	segs := place(t, nav, "MSH", "EVN", "PID", "ZPI", "ZPI", "PV1", "PID")

	names := m.Names()
	idx := map[string]int{}
	for i, n := range names {
		idx[n] = i
	}
	if idx["ZPI"] != idx["PID"]+1 {
		t.Errorf("ZPI declared at %d, PID at %d", idx["ZPI"], idx["PID"])
	}
	if m.Count("ZPI") != 2 {
		t.Errorf("ZPI count = %d; want 2", m.Count("ZPI"))
	}
	if segs[3].IsGeneric() != true {
		t.Error("ZPI should be generic")
	}
	if segs[5].Path() != "/PV1(0)" {
		t.Errorf("PV1 placed at %s", segs[5].Path())
	}

	// A second PID cannot repeat, so it becomes a non-standard child.
	if segs[6].Key() != "PID2" || idx["PID2"] != idx["PV1"]+1 {
		t.Errorf("second PID key %s at %d", segs[6].Key(), idx["PID2"])
	}
}

func TestNextNonstandardInsideGroup(t *testing.T) {
	m := newMessage(t, "ORU_R01")
	nav := New(m, false)
	segs := place(t, nav, "MSH", "PID", "OBR", "OBX", "ZXX", "OBX")

	if got := segs[4].Path(); got != "/PATIENT_RESULT(0)/ORDER_OBSERVATION(0)/OBSERVATION(0)/ZXX(0)" {
		t.Errorf("ZXX placed at %s", got)
	}
	if got := segs[5].Path(); got != "/PATIENT_RESULT(0)/ORDER_OBSERVATION(0)/OBSERVATION(1)/OBX(0)" {
		t.Errorf("second OBX placed at %s", got)
	}
}

func TestNextStrict(t *testing.T) {
	m := newMessage(t, "ADT_A01")
	nav := New(m, true)
	place(t, nav, "MSH", "PID")

	_, err := nav.Next("ZPI")
	if !errors.Is(err, hl7err.ErrStructural) {
		t.Fatalf("Next(ZPI) error = %v; want structural", err)
	}
	if loc := hl7err.LocationOf(err); loc.Segment != "ZPI" || loc.Version != "2.5" {
		t.Errorf("error location = %+v", loc)
	}
	if pos := nav.Position(); pos.Name != "PID" {
		t.Errorf("cursor moved to %s after failure", pos.Name)
	}
}

func TestNextGenericMessage(t *testing.T) {
	m := model.NewGeneric(specs.Default(), "2.5")
	nav := New(m, false)
	segs := place(t, nav, "MSH", "PID", "OBX", "OBX", "PID")

	want := []string{"MSH", "PID", "OBX", "PID2"}
	got := m.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names() = %v; want %v", got, want)
		}
	}
	if segs[3].Rep() != 1 {
		t.Errorf("second OBX rep = %d; want 1", segs[3].Rep())
	}
	// Known segments keep their definitions even in a generic message.
	if segs[1].IsGeneric() {
		t.Error("PID should resolve to its schema definition")
	}
}

func TestReset(t *testing.T) {
	m := newMessage(t, "ADT_A01")
	nav := New(m, false)
	place(t, nav, "MSH", "EVN")
	nav.Reset()

	if nav.Current() != nil {
		t.Error("Current() should be nil after Reset")
	}
	if len(nav.Path()) != 1 {
		t.Errorf("Path() has %d entries; want 1", len(nav.Path()))
	}
}
