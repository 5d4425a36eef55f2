package model

import (
	"strconv"

	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/schema"
)

// Group is an ordered collection of segments and nested groups.
type Group struct {
	def    *schema.StructureDef
	decls  []schema.ChildDef
	key    string
	parent *Group
	msg    *Message
	rep    int

	children map[string][]Structure
}

func newGroup(def *schema.StructureDef, key string, parent *Group, msg *Message, rep int) *Group {
	return &Group{
		def:      def,
		decls:    def.Children,
		key:      key,
		parent:   parent,
		msg:      msg,
		rep:      rep,
		children: make(map[string][]Structure),
	}
}

// Name returns the group name without message qualifier, or the message
// structure for the root.
func (g *Group) Name() string {
	if g.parent == nil {
		return g.def.Name
	}
	return schema.ShortName(g.def.Name)
}

// Def returns the schema definition.
func (g *Group) Def() *schema.StructureDef { return g.def }

// Parent returns the enclosing group, nil for the root.
func (g *Group) Parent() *Group { return g.parent }

// Message returns the owning message.
func (g *Group) Message() *Message { return g.msg }

// Key returns the child name under which g is stored in its parent.
func (g *Group) Key() string { return g.key }

// Rep returns the repetition index of this group in its parent.
func (g *Group) Rep() int { return g.rep }

// IsRoot reports whether g is the message itself.
func (g *Group) IsRoot() bool { return g.parent == nil }

// Children returns the child declarations, including non-standard segments
// added while parsing.
func (g *Group) Children() []schema.ChildDef { return g.decls }

// Names returns the child keys in schema order.
func (g *Group) Names() []string {
	out := make([]string, len(g.decls))
	for i, c := range g.decls {
		out[i] = c.Name
	}
	return out
}

// ChildDef returns the declaration of the named child.
func (g *Group) ChildDef(name string) (schema.ChildDef, bool) {
	i := g.index(name)
	if i < 0 {
		return schema.ChildDef{}, false
	}
	return g.decls[i], true
}

func (g *Group) index(name string) int {
	for i, c := range g.decls {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Count returns the number of live instances of the named child.
func (g *Group) Count(name string) int {
	return len(g.children[name])
}

// GetAll returns the live instances of the named child in insertion order.
func (g *Group) GetAll(name string) []Structure {
	reps := g.children[name]
	out := make([]Structure, len(reps))
	copy(out, reps)
	return out
}

// Get returns repetition rep of the named child. When rep equals the current
// count a new instance is appended; anything further ahead is an error, as is
// a second instance of a non-repeating child.
func (g *Group) Get(name string, rep int) (Structure, error) {
	decl, ok := g.ChildDef(name)
	if !ok {
		return nil, g.structuralErr("%s has no child %s", g.Name(), name)
	}
	reps := g.children[name]
	switch {
	case rep < 0:
		return nil, g.structuralErr("negative repetition %d of %s", rep, name)
	case rep < len(reps):
		return reps[rep], nil
	case rep > len(reps):
		return nil, g.structuralErr("repetition %d of %s requested but only %d exist", rep, name, len(reps))
	case rep > 0 && !decl.Repeating:
		return nil, g.structuralErr("%s does not repeat in %s", name, g.Name())
	}

	s, err := g.create(decl, rep)
	if err != nil {
		return nil, err
	}
	g.children[name] = append(reps, s)
	return s, nil
}

// Segment is Get for a child known to be a segment.
func (g *Group) Segment(name string, rep int) (*Segment, error) {
	s, err := g.Get(name, rep)
	if err != nil {
		return nil, err
	}
	seg, ok := s.(*Segment)
	if !ok {
		return nil, g.structuralErr("%s is a group, not a segment", name)
	}
	return seg, nil
}

// ChildGroup is Get for a child known to be a group.
func (g *Group) ChildGroup(name string, rep int) (*Group, error) {
	s, err := g.Get(name, rep)
	if err != nil {
		return nil, err
	}
	grp, ok := s.(*Group)
	if !ok {
		return nil, g.structuralErr("%s is a segment, not a group", name)
	}
	return grp, nil
}

func (g *Group) create(decl schema.ChildDef, rep int) (Structure, error) {
	if decl.Kind == schema.KindGroup {
		def, err := g.msg.provider.ResolveStructure(g.msg.version, decl.Structure)
		if err != nil {
			return nil, hl7err.At(hl7err.Wrap(hl7err.KindStructural, err, "cannot create group %s", decl.Name), g.Location())
		}
		return newGroup(def, decl.Name, g, g.msg, rep), nil
	}
	return newSegment(g.msg.segmentDef(decl.Structure), decl, g, rep), nil
}

// InsertNonstandardSegment declares an optional repeating segment child
// directly after the child keyed after, or at the end when after is not a
// child. It returns the key of the new declaration, which carries a numeric
// suffix when name is already a key of this group.
func (g *Group) InsertNonstandardSegment(name, after string) (string, error) {
	if len(name) != 3 {
		return "", g.structuralErr("invalid segment name %q", name)
	}
	key := name
	for n := 2; g.index(key) >= 0; n++ {
		key = name + strconv.Itoa(n)
	}
	decl := schema.ChildDef{
		Name:      key,
		Structure: name,
		Kind:      schema.KindSegment,
		Repeating: true,
	}

	pos := len(g.decls)
	if i := g.index(after); i >= 0 {
		pos = i + 1
	}
	decls := make([]schema.ChildDef, 0, len(g.decls)+1)
	decls = append(decls, g.decls[:pos]...)
	decls = append(decls, decl)
	decls = append(decls, g.decls[pos:]...)
	g.decls = decls
	return key, nil
}

// IsNonstandard reports whether the named child was added at runtime.
func (g *Group) IsNonstandard(name string) bool {
	if _, ok := g.def.Child(name); ok {
		return false
	}
	return g.index(name) >= 0
}

// IsEmpty reports whether no descendant holds a value.
func (g *Group) IsEmpty() bool {
	for _, reps := range g.children {
		for _, s := range reps {
			if !s.IsEmpty() {
				return false
			}
		}
	}
	return true
}

// Location returns the location of the group for error reporting.
func (g *Group) Location() hl7err.Location {
	return hl7err.Location{Version: g.msg.version}
}

// Path returns the position of g from the root, e.g. /PATIENT_RESULT(0)/PATIENT(0).
func (g *Group) Path() string {
	if g.parent == nil {
		return ""
	}
	return g.parent.Path() + "/" + g.key + "(" + strconv.Itoa(g.rep) + ")"
}

func (g *Group) walk(fn func(*Segment) error) error {
	for _, decl := range g.decls {
		for _, s := range g.children[decl.Name] {
			switch n := s.(type) {
			case *Segment:
				if err := fn(n); err != nil {
					return err
				}
			case *Group:
				if err := n.walk(fn); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (g *Group) structuralErr(format string, args ...any) error {
	err := hl7err.Structural(format, args...)
	err.Loc = g.Location()
	return err
}
