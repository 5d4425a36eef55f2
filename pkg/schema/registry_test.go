package schema

import (
	"errors"
	"reflect"
	"testing"
)

func testLoader(c *Catalog) error {
	c.AddStructure("2.5", &StructureDef{
		Name: "ACK",
		Kind: KindGroup,
		Children: []ChildDef{
			{Name: "MSH", Structure: "MSH", Kind: KindSegment, Required: true},
			{Name: "MSA", Structure: "MSA", Kind: KindSegment, Required: true},
		},
	})
	c.AddStructure("2.5", &StructureDef{
		Name:   "MSA",
		Kind:   KindSegment,
		Fields: []FieldDef{{Name: "AcknowledgmentCode", Type: "ID", MinReps: 1, MaxReps: 1, Table: "0008"}},
	})
	c.AddType("2.5", &TypeDef{Name: "ID"})
	c.MapEvent("2.5", "ACK", "", "ACK")
	c.MapEvent("2.5", "ADT", "A04", "ADT_A01")
	return nil
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry(testLoader)

	def, err := r.ResolveStructure("2.5", "ACK")
	if err != nil {
		t.Fatalf("ResolveStructure() failed: %v", err)
	}
	if c, ok := def.Child("MSA"); !ok || c.SegmentName() != "MSA" || !c.Required {
		t.Errorf("Child(MSA) = %+v, %v", c, ok)
	}

	seg, _ := r.ResolveStructure("2.5", "MSA")
	if f, ok := seg.Field(1); !ok || !f.Required() || f.Repeating() || f.Table != "0008" {
		t.Errorf("Field(1) = %+v, %v", f, ok)
	}
	if _, ok := seg.Field(2); ok {
		t.Error("Field(2) should not be declared")
	}

	typ, err := r.ResolveType("ID", "2.5")
	if err != nil || !typ.IsPrimitive() {
		t.Errorf("ResolveType(ID) = %+v, %v; want primitive", typ, err)
	}

	if _, err := r.ResolveStructure("2.5", "ZZZ"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown structure error = %v; want ErrNotFound", err)
	}
	if _, err := r.ResolveType("CX", "2.5"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown type error = %v; want ErrNotFound", err)
	}
	if _, err := r.ResolveStructure("9.9", "ACK"); !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("unknown version error = %v; want ErrUnknownVersion", err)
	}
}

func TestRegistryMessageStructure(t *testing.T) {
	r := NewRegistry(testLoader)

	tests := []struct {
		msgType, event string
		want           string
		ok             bool
	}{
		{"ADT", "A04", "ADT_A01", true},
		{"ACK", "A01", "ACK", true},
		{"ACK", "", "ACK", true},
		{"ORU", "R01", "", false},
	}
	for _, tt := range tests {
		got, ok := r.MessageStructure("2.5", tt.msgType, tt.event)
		if got != tt.want || ok != tt.ok {
			t.Errorf("MessageStructure(%s, %s) = %q, %v; want %q, %v", tt.msgType, tt.event, got, ok, tt.want, tt.ok)
		}
	}
	if _, ok := r.MessageStructure("9.9", "ADT", "A04"); ok {
		t.Error("unknown version should not resolve")
	}
}

func TestRegistryLoadOnce(t *testing.T) {
	calls := 0
	r := NewRegistry(func(c *Catalog) error {
		calls++
		c.AddType("2.4", &TypeDef{Name: "ST"})
		return nil
	}, testLoader)

	for i := 0; i < 3; i++ {
		if err := r.Init(); err != nil {
			t.Fatalf("Init() failed: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("loader ran %d times; want 1", calls)
	}
	if got := r.Versions(); !reflect.DeepEqual(got, []string{"2.4", "2.5"}) {
		t.Errorf("Versions() = %v", got)
	}
	if !r.HasVersion("2.4") || r.HasVersion("2.3") {
		t.Error("HasVersion() mismatch")
	}
	if s, ty := r.Count("2.5"); s != 2 || ty != 1 {
		t.Errorf("Count(2.5) = %d, %d; want 2, 1", s, ty)
	}
}

func TestRegistryLoadError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry(testLoader, func(*Catalog) error { return boom })

	if err := r.Init(); !errors.Is(err, boom) {
		t.Fatalf("Init() error = %v; want boom", err)
	}
	if _, err := r.ResolveStructure("2.5", "ACK"); !errors.Is(err, boom) {
		t.Errorf("lookup after failed load = %v; want boom", err)
	}
	if r.Versions() != nil {
		t.Error("Versions() should be nil after a failed load")
	}
}

func TestReplaceDefinition(t *testing.T) {
	r := NewRegistry(testLoader, func(c *Catalog) error {
		c.AddStructure("2.5", &StructureDef{Name: "MSA", Kind: KindSegment})
		return nil
	})
	seg, err := r.ResolveStructure("2.5", "MSA")
	if err != nil {
		t.Fatal(err)
	}
	if len(seg.Fields) != 0 {
		t.Errorf("later loader should replace MSA, got %d fields", len(seg.Fields))
	}
}
