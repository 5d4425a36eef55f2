// Package terser reads and writes message values through path expressions.
//
// A path names groups and a segment separated by slashes, followed by
// -field(rep)-component-subcomponent:
//
//	/PATIENT_RESULT/PATIENT/PID-5-1
//	/.OBX(2)-5          first OBX found at any depth, third repetition
//	/*-9-2              first child of the root, MSH-9-2
//	NTE-3               relative to the group reached by the previous call
//
// Get never creates structure, and an explicit repetition past the live
// count is a structural error rather than an absent value. Set creates every
// missing group, segment, repetition and component on the way and never
// removes anything.
package terser

import (
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/model"
	"github.com/gofhir/hl7v2/pkg/navigator"
	"github.com/gofhir/hl7v2/pkg/schema"
)

// Terser resolves paths against one message.
type Terser struct {
	msg     *model.Message
	current *model.Group
}

// New creates a terser for msg positioned at the message root.
func New(msg *model.Message) *Terser {
	return &Terser{msg: msg, current: msg.Group}
}

// Message returns the message the terser works on.
func (t *Terser) Message() *model.Message { return t.msg }

// Get returns the value at path. The boolean is false when the addressed
// structure or value does not exist.
func (t *Terser) Get(expr string) (string, bool, error) {
	p, err := t.fieldPath(expr)
	if err != nil {
		return "", false, err
	}
	seg, ok, err := t.locate(p, false)
	if err != nil || !ok {
		return "", false, err
	}
	typ, ok, err := t.value(seg, p, false)
	if err != nil || !ok {
		return "", false, err
	}
	prim := model.FirstPrimitive(typ)
	if prim == nil {
		return "", false, nil
	}
	v, set := prim.Value()
	return v, set, nil
}

// Set assigns value at path, creating what is missing.
func (t *Terser) Set(expr, value string) error {
	p, err := t.fieldPath(expr)
	if err != nil {
		return err
	}
	seg, ok, err := t.locate(p, true)
	if err != nil {
		return err
	}
	if !ok {
		return hl7err.Structural("cannot create %s", expr)
	}
	typ, _, err := t.value(seg, p, true)
	if err != nil {
		return err
	}
	prim := model.FirstPrimitive(typ)
	if prim == nil {
		return hl7err.At(hl7err.Structural("%s does not address a value", expr), fieldLocation(seg, p))
	}
	if err := prim.SetValue(value); err != nil {
		return hl7err.At(err, fieldLocation(seg, p))
	}
	return nil
}

// Segment returns the segment a path without field part addresses. With
// create the segment and its enclosing groups are created when missing.
func (t *Terser) Segment(expr string, create bool) (*model.Segment, error) {
	p, err := ParsePath(expr)
	if err != nil {
		return nil, err
	}
	if p.Field != 0 {
		return nil, syntaxErr(expr, "segment path must not name a field")
	}
	seg, ok, err := t.locate(p, create)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return seg, nil
}

func (t *Terser) fieldPath(expr string) (*Path, error) {
	p, err := ParsePath(expr)
	if err != nil {
		return nil, err
	}
	if p.Field == 0 {
		return nil, syntaxErr(expr, "no field given")
	}
	return p, nil
}

// locate walks the group steps of p and returns the addressed segment.
func (t *Terser) locate(p *Path, create bool) (*model.Segment, bool, error) {
	g := t.msg.Group
	if !p.Absolute {
		g = t.current
	}
	for i, st := range p.Steps {
		s, ok, err := t.step(g, st, create)
		if err != nil {
			return nil, false, hl7err.At(err, hl7err.Location{Version: t.msg.Version()})
		}
		if !ok {
			return nil, false, nil
		}
		if i == len(p.Steps)-1 {
			seg, isSeg := s.(*model.Segment)
			if !isSeg {
				return nil, false, hl7err.Structural("%s in %s is a group, not a segment", st.Name, p.Raw)
			}
			t.current = seg.Parent()
			return seg, true, nil
		}
		grp, isGroup := s.(*model.Group)
		if !isGroup {
			return nil, false, hl7err.At(
				hl7err.Structural("%s in %s is a segment, not a group", st.Name, p.Raw),
				hl7err.Location{Version: t.msg.Version(), Segment: st.Name},
			)
		}
		g = grp
	}
	return nil, false, nil
}

// step resolves one path element below g.
func (t *Terser) step(g *model.Group, st Step, create bool) (model.Structure, bool, error) {
	parent, name := g, ""
	if st.Deep {
		var declared bool
		parent, name, declared = t.search(g, st, create)
		if parent == nil {
			if declared && st.Explicit && !create {
				return nil, false, hl7err.Structural("repetition %d of %s requested but none exist", st.Rep, st.Name)
			}
			if declared {
				return nil, false, nil
			}
			return nil, false, t.notFound(g, st)
		}
	} else {
		for _, decl := range g.Children() {
			if st.Matches(decl.Name) {
				name = decl.Name
				break
			}
		}
		if name == "" {
			return nil, false, t.notFound(g, st)
		}
	}

	decl, _ := parent.ChildDef(name)
	count := parent.Count(name)
	switch {
	case st.Rep > 0 && !decl.Repeating:
		return nil, false, hl7err.Structural("%s does not repeat in %s", name, parent.Name())
	case st.Rep > count, st.Rep == count && st.Explicit && !create:
		return nil, false, hl7err.Structural("repetition %d of %s requested but only %d exist", st.Rep, name, count)
	case st.Rep == count && !create:
		return nil, false, nil
	}
	s, err := parent.Get(name, st.Rep)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (t *Terser) notFound(g *model.Group, st Step) error {
	if st.IsGlob() {
		return hl7err.PathSyntax("no child of %s matches %s", g.Name(), st.Name)
	}
	return hl7err.Structural("%s is not declared in %s", st.Name, g.Name())
}

// search looks for the first child matching st in schema order, depth
// first. Live group instances are searched before the schema, so segments
// that were added while decoding are found too. When nothing live matches
// but the schema declares a match, search returns a nil group and declared
// true, or creates the path to it when create is set.
func (t *Terser) search(g *model.Group, st Step, create bool) (*model.Group, string, bool) {
	for _, decl := range g.Children() {
		if st.Matches(decl.Name) {
			return g, decl.Name, true
		}
		if decl.Kind != schema.KindGroup {
			continue
		}
		for _, s := range g.GetAll(decl.Name) {
			parent, name, declared := t.search(s.(*model.Group), st, create)
			if parent != nil || declared {
				return parent, name, declared
			}
		}
		if g.Count(decl.Name) > 0 || !t.declares(decl.Structure, st) {
			continue
		}
		if !create {
			return nil, "", true
		}
		s, err := g.Get(decl.Name, 0)
		if err != nil {
			return nil, "", true
		}
		return t.search(s.(*model.Group), st, create)
	}
	return nil, "", false
}

// declares reports whether the group structure declares a match for st at
// any depth.
func (t *Terser) declares(structure string, st Step) bool {
	p, version := t.msg.Provider(), t.msg.Version()
	def, err := p.ResolveStructure(version, structure)
	if err != nil {
		return false
	}
	if !st.IsGlob() && navigator.Contains(p, version, def, st.Name, false, false) {
		return true
	}
	for _, c := range def.Children {
		if st.Matches(c.Name) {
			return true
		}
		if c.Kind == schema.KindGroup && t.declares(c.Structure, st) {
			return true
		}
	}
	return false
}

// value resolves the field, component and subcomponent of p in seg.
func (t *Terser) value(seg *model.Segment, p *Path, create bool) (model.Type, bool, error) {
	loc := fieldLocation(seg, p)
	fd := seg.FieldDef(p.Field)
	if fd.MaxReps != schema.Unbounded && p.FieldRep >= fd.MaxReps {
		return nil, false, hl7err.At(
			hl7err.Structural("field %s allows at most %d repetitions", fd.Name, fd.MaxReps), loc)
	}

	var field model.Type
	if create {
		f, err := seg.Field(p.Field, p.FieldRep)
		if err != nil {
			return nil, false, hl7err.At(err, loc)
		}
		field = f
	} else {
		f, ok := seg.FieldIfExists(p.Field, p.FieldRep)
		if !ok && p.FieldRepExplicit {
			return nil, false, hl7err.At(hl7err.Structural("repetition %d of %s requested but only %d exist",
				p.FieldRep, fd.Name, seg.Reps(p.Field)), loc)
		}
		if !ok {
			return nil, false, nil
		}
		field = f
	}

	comp, ok, err := child(field, p.Component, p.Subcomponent > 1, create)
	if err != nil || !ok {
		return nil, false, hl7err.At(err, loc)
	}
	if p.Subcomponent == 1 {
		return comp, true, nil
	}
	if model.Depth(comp) == 0 {
		// A primitive field is its own first component and has no
		// subcomponents.
		if _, ok := comp.(*model.Varies); ok && !create {
			return nil, false, nil
		}
		return nil, false, hl7err.At(hl7err.Structural("%s has no subcomponents", field.TypeName()), loc)
	}
	sub, ok, err := child(comp, p.Subcomponent, false, create)
	if err != nil || !ok {
		return nil, false, hl7err.At(err, loc)
	}
	return sub, true, nil
}

// child returns the 1-based component i of t. Components past a declared
// width live in the extra components. A generic Varies value is turned into
// a composite when a write addresses its parts.
func child(t model.Type, i int, deeper, create bool) (model.Type, bool, error) {
	inner := t
	if v, ok := t.(*model.Varies); ok {
		if prim, ok := v.Data().(*model.Primitive); ok && prim.IsGeneric() && create && (i > 1 || deeper) && model.Depth(t) < 2 {
			v.Generalize()
		}
		inner = v.Data()
	}

	k := i - 1
	switch x := inner.(type) {
	case *model.Primitive:
		if i == 1 {
			return t, true, nil
		}
		k = i - 2
	case *model.Composite:
		if i <= x.Len() || (x.IsGeneric() && create) {
			c, err := x.Component(i - 1)
			if err != nil {
				return nil, false, err
			}
			return c, true, nil
		}
		k = i - 1 - x.Len()
	}

	extra := inner.Extra()
	if create {
		return extra.Get(k), true, nil
	}
	c, ok := extra.Component(k)
	if !ok {
		return nil, false, nil
	}
	return c, true, nil
}

func fieldLocation(seg *model.Segment, p *Path) hl7err.Location {
	loc := seg.Location()
	loc.Field = p.Field
	loc.FieldRep = p.FieldRep
	loc.Component = p.Component
	loc.Subcomponent = p.Subcomponent
	return loc
}
