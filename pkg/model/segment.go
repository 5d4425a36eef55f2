package model

import (
	"strconv"

	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/schema"
)

// Segment is one line of a message: an ordered array of fields, each holding
// one or more repetitions.
type Segment struct {
	name   string
	key    string
	def    *schema.StructureDef // nil for generic segments
	parent *Group
	msg    *Message
	rep    int

	fields [][]Type
}

func newSegment(def *schema.StructureDef, decl schema.ChildDef, parent *Group, rep int) *Segment {
	return &Segment{
		name:   decl.Structure,
		key:    decl.Name,
		def:    def,
		parent: parent,
		msg:    parent.msg,
		rep:    rep,
	}
}

// segmentDef returns the definition of a segment or nil when the schema does
// not know it.
func (m *Message) segmentDef(name string) *schema.StructureDef {
	if m.provider == nil {
		return nil
	}
	def, err := m.provider.ResolveStructure(m.version, name)
	if err != nil || def.Kind != schema.KindSegment {
		return nil
	}
	return def
}

// Name returns the segment ID, e.g. PID.
func (s *Segment) Name() string { return s.name }

// Key returns the child name under which s is stored in its parent.
func (s *Segment) Key() string { return s.key }

// Rep returns the repetition index of this segment in its parent.
func (s *Segment) Rep() int { return s.rep }

// Parent returns the enclosing group.
func (s *Segment) Parent() *Group { return s.parent }

// Message returns the owning message.
func (s *Segment) Message() *Message { return s.msg }

// Def returns the schema definition, nil for generic segments.
func (s *Segment) Def() *schema.StructureDef { return s.def }

// IsGeneric reports whether the segment is unknown to the schema.
func (s *Segment) IsGeneric() bool { return s.def == nil }

// FieldDef returns the declaration of field n. Undeclared fields are
// unbounded Varies.
func (s *Segment) FieldDef(n int) schema.FieldDef {
	if s.def != nil {
		if fd, ok := s.def.Field(n); ok {
			return fd
		}
	}
	return schema.FieldDef{
		Name:    s.name + "-" + strconv.Itoa(n),
		Type:    schema.VariesType,
		MaxReps: schema.Unbounded,
	}
}

// NumFields returns the number of declared or populated fields.
func (s *Segment) NumFields() int {
	n := len(s.fields)
	if s.def != nil && len(s.def.Fields) > n {
		n = len(s.def.Fields)
	}
	return n
}

// Reps returns the number of live repetitions of field n.
func (s *Segment) Reps(n int) int {
	if n < 1 || n > len(s.fields) {
		return 0
	}
	return len(s.fields[n-1])
}

// AllReps returns the live repetitions of field n.
func (s *Segment) AllReps(n int) []Type {
	if n < 1 || n > len(s.fields) {
		return nil
	}
	out := make([]Type, len(s.fields[n-1]))
	copy(out, s.fields[n-1])
	return out
}

// FieldIfExists returns repetition rep of field n without creating anything.
func (s *Segment) FieldIfExists(n, rep int) (Type, bool) {
	if n < 1 || n > len(s.fields) || rep < 0 || rep >= len(s.fields[n-1]) {
		return nil, false
	}
	return s.fields[n-1][rep], true
}

// Field returns repetition rep of field n (1-based). The first access of a
// field creates its minimum number of repetitions. A repetition equal to the
// current count is created; repetitions further ahead, or beyond a bounded
// maximum, are structural errors.
func (s *Segment) Field(n, rep int) (Type, error) {
	if n < 1 {
		return nil, s.fieldErr(n, rep, "invalid field number %d", n)
	}
	if rep < 0 {
		return nil, s.fieldErr(n, rep, "negative repetition %d", rep)
	}
	fd := s.FieldDef(n)
	if fd.MaxReps != schema.Unbounded && rep >= fd.MaxReps {
		return nil, s.fieldErr(n, rep, "field %s allows at most %d repetitions", fd.Name, fd.MaxReps)
	}

	s.ensureMin(n, fd)
	reps := s.fields[n-1]
	switch {
	case rep < len(reps):
		return reps[rep], nil
	case rep > len(reps):
		return nil, s.fieldErr(n, rep, "repetition %d requested but only %d exist", rep, len(reps))
	}
	t := s.newFieldType(n, rep, fd)
	s.fields[n-1] = append(reps, t)
	return t, nil
}

// AppendRep adds a repetition to field n even past the declared maximum.
// The overflow is recorded as a problem on the message; the decoder uses this
// to keep content that a strict schema would reject.
func (s *Segment) AppendRep(n int) (Type, error) {
	if n < 1 {
		return nil, s.fieldErr(n, 0, "invalid field number %d", n)
	}
	fd := s.FieldDef(n)
	s.grow(n)
	rep := len(s.fields[n-1])
	if fd.MaxReps != schema.Unbounded && rep >= fd.MaxReps {
		s.msg.AddProblem(s.fieldErr(n, rep, "field %s allows at most %d repetitions", fd.Name, fd.MaxReps))
	}
	t := s.newFieldType(n, rep, fd)
	s.fields[n-1] = append(s.fields[n-1], t)
	return t, nil
}

func (s *Segment) grow(n int) {
	for len(s.fields) < n {
		s.fields = append(s.fields, nil)
	}
}

func (s *Segment) ensureMin(n int, fd schema.FieldDef) {
	s.grow(n)
	if len(s.fields[n-1]) > 0 {
		return
	}
	want := fd.MinReps
	if want < 1 {
		want = 1
	}
	for rep := 0; rep < want; rep++ {
		s.fields[n-1] = append(s.fields[n-1], s.newFieldType(n, rep, fd))
	}
}

func (s *Segment) newFieldType(n, rep int, fd schema.FieldDef) Type {
	loc := s.Location()
	loc.Field = n
	loc.FieldRep = rep
	if fd.Type != schema.VariesType {
		return s.msg.NewType(fd.Type, loc, 0)
	}
	v := newVaries(s.msg, loc)
	if fd.TypeFrom > 0 {
		s.resolveVaries(v, fd.TypeFrom)
	}
	return v
}

// resolveVaries types v from the value of sibling field from, if that value
// names a known data type.
func (s *Segment) resolveVaries(v *Varies, from int) {
	sibling, ok := s.FieldIfExists(from, 0)
	if !ok {
		return
	}
	p := FirstPrimitive(sibling)
	if p == nil {
		return
	}
	typeName, ok := p.Value()
	if !ok || typeName == "" {
		return
	}
	if s.msg.resolveType(typeName) == nil {
		return
	}
	v.SetData(s.msg.NewType(typeName, v.loc, 0))
}

// ResolveVaries re-types the empty Varies repetitions of field n from the
// sibling field named in its declaration. It is called after the sibling
// has been populated.
func (s *Segment) ResolveVaries(n int) {
	fd := s.FieldDef(n)
	if fd.TypeFrom == 0 || n > len(s.fields) {
		return
	}
	for _, t := range s.fields[n-1] {
		if v, ok := t.(*Varies); ok && v.IsEmpty() {
			s.resolveVaries(v, fd.TypeFrom)
		}
	}
}

// IsEmpty reports whether no field holds a value.
func (s *Segment) IsEmpty() bool {
	for _, reps := range s.fields {
		for _, t := range reps {
			if !t.IsEmpty() {
				return false
			}
		}
	}
	return true
}

// Location returns the segment location.
func (s *Segment) Location() hl7err.Location {
	return hl7err.Location{Version: s.msg.version, Segment: s.name, SegmentRep: s.rep}
}

// Path returns the position of s from the root, e.g. /PATIENT_RESULT(0)/PID(0).
func (s *Segment) Path() string {
	return s.parent.Path() + "/" + s.key + "(" + strconv.Itoa(s.rep) + ")"
}

func (s *Segment) fieldErr(n, rep int, format string, args ...any) error {
	err := hl7err.Structural(format, args...)
	err.Loc = s.Location()
	err.Loc.Field = n
	err.Loc.FieldRep = rep
	return err
}
