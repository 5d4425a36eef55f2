// Package navigator places segments into a message tree by walking the
// message schema.
//
// A Navigator keeps a cursor on the most recently placed segment. Next moves
// the cursor forward to the next structure named target, creating groups and
// repetitions on the way. At every level, from the innermost group outwards,
// it tries in order:
//
//  1. the next repetition of the current structure, when it repeats and is
//     named target (a repeating group qualifies when target can start it);
//  2. the remaining children of the group, descending into child groups that
//     contain target;
//  3. the parent group.
//
// When nothing in the schema matches, a permissive navigator declares a
// non-standard segment right after the cursor; a strict one fails.
package navigator

import (
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/logger"
	"github.com/gofhir/hl7v2/pkg/model"
	"github.com/gofhir/hl7v2/pkg/schema"
)

// Position identifies a child instance inside a group.
type Position struct {
	Parent *model.Group
	Name   string // child key; empty before the first child is visited
	Rep    int
}

// Navigator is a forward-only cursor over a message tree.
type Navigator struct {
	msg    *model.Message
	strict bool
	stack  []Position
}

// New returns a navigator positioned before the first child of msg.
func New(msg *model.Message, strict bool) *Navigator {
	n := &Navigator{msg: msg, strict: strict}
	n.Reset()
	return n
}

// Reset moves the cursor back before the first child of the message.
func (n *Navigator) Reset() {
	n.stack = []Position{{Parent: n.msg.Group, Rep: -1}}
}

// Position returns the cursor.
func (n *Navigator) Position() Position {
	return n.stack[len(n.stack)-1]
}

// Path returns the cursor and every enclosing group position, outermost first.
func (n *Navigator) Path() []Position {
	out := make([]Position, len(n.stack))
	copy(out, n.stack)
	return out
}

// Current returns the structure under the cursor, or nil before the first
// call to Next.
func (n *Navigator) Current() model.Structure {
	pos := n.Position()
	if pos.Name == "" || pos.Rep < 0 || pos.Rep >= pos.Parent.Count(pos.Name) {
		return nil
	}
	return pos.Parent.GetAll(pos.Name)[pos.Rep]
}

// step is one move of a resolved route: the child key and the repetition
// to create or reuse inside the group reached so far.
type step struct {
	key string
	rep int
}

// Next finds or creates the next segment named target after the cursor and
// moves the cursor onto it.
func (n *Navigator) Next(target string) (*model.Segment, error) {
	for level := len(n.stack) - 1; level >= 0; level-- {
		route, ok := n.matchAt(level, target)
		if !ok {
			continue
		}
		return n.follow(level, route)
	}

	if n.strict {
		return nil, hl7err.At(
			hl7err.Structural("segment %s is not allowed in %s", target, n.msg.Structure()),
			hl7err.Location{Version: n.msg.Version(), Segment: target},
		)
	}
	return n.insertNonstandard(target)
}

// matchAt applies the same-structure and forward-scan rules at one level of
// the stack. The returned route starts in the group of that level.
func (n *Navigator) matchAt(level int, target string) ([]step, bool) {
	pos := n.stack[level]
	g := pos.Parent

	if pos.Name != "" {
		decl, ok := g.ChildDef(pos.Name)
		if ok && decl.Repeating {
			next := step{key: pos.Name, rep: g.Count(pos.Name)}
			switch decl.Kind {
			case schema.KindSegment:
				if decl.Structure == target {
					return []step{next}, true
				}
			case schema.KindGroup:
				// Only a group we have left can start over.
				if level < len(n.stack)-1 {
					if def := n.resolve(decl.Structure); def != nil && Contains(n.msg.Provider(), n.msg.Version(), def, target, true, true) {
						inner, ok := n.search(def.Children, -1, target)
						if ok {
							return append([]step{next}, inner...), true
						}
					}
				}
			}
		}
	}

	if !MatchExistsAfterPosition(pos, target, false, false) {
		return nil, false
	}
	return n.search(g.Children(), indexOf(g.Children(), pos.Name), target)
}

// search scans decls after index from for target, descending into groups.
// New group instances always start at their first repetition slot.
func (n *Navigator) search(decls []schema.ChildDef, from int, target string) ([]step, bool) {
	for i := from + 1; i < len(decls); i++ {
		d := decls[i]
		switch d.Kind {
		case schema.KindSegment:
			if d.Structure == target {
				return []step{{key: d.Name, rep: -1}}, true
			}
		case schema.KindGroup:
			def := n.resolve(d.Structure)
			if def == nil {
				continue
			}
			if inner, ok := n.search(def.Children, -1, target); ok {
				return append([]step{{key: d.Name, rep: -1}}, inner...), true
			}
		}
	}
	return nil, false
}

// follow instantiates route below the group at level and moves the cursor to
// its last step. A rep of -1 means the next free repetition.
func (n *Navigator) follow(level int, route []step) (*model.Segment, error) {
	stack := append([]Position(nil), n.stack[:level+1]...)
	g := stack[level].Parent

	for i, st := range route {
		rep := st.rep
		if rep < 0 {
			rep = g.Count(st.key)
			if decl, _ := g.ChildDef(st.key); rep > 0 && !decl.Repeating {
				// A non-repeating child that already exists is reused only
				// as a container; segments never appear twice.
				if decl.Kind == schema.KindSegment {
					return nil, n.duplicateErr(g, st.key)
				}
				rep--
			}
		}
		s, err := g.Get(st.key, rep)
		if err != nil {
			return nil, err
		}
		stack[len(stack)-1].Name = st.key
		stack[len(stack)-1].Rep = rep

		if i == len(route)-1 {
			seg, ok := s.(*model.Segment)
			if !ok {
				return nil, hl7err.Structural("%s resolved to a group", st.key)
			}
			n.stack = stack
			return seg, nil
		}
		child, ok := s.(*model.Group)
		if !ok {
			return nil, hl7err.Structural("%s resolved to a segment", st.key)
		}
		g = child
		stack = append(stack, Position{Parent: g, Rep: -1})
	}
	return nil, hl7err.Structural("empty route")
}

func (n *Navigator) duplicateErr(g *model.Group, key string) error {
	return hl7err.At(
		hl7err.Structural("%s does not repeat in %s", key, g.Name()),
		hl7err.Location{Version: n.msg.Version(), Segment: key, SegmentRep: 1},
	)
}

// insertNonstandard declares target right after the cursor in the innermost
// group and moves onto its first repetition.
func (n *Navigator) insertNonstandard(target string) (*model.Segment, error) {
	top := len(n.stack) - 1
	pos := n.stack[top]
	key, err := pos.Parent.InsertNonstandardSegment(target, pos.Name)
	if err != nil {
		return nil, hl7err.At(err, hl7err.Location{Version: n.msg.Version(), Segment: target})
	}
	logger.Debug("non-standard segment %s added as %s in %s after %q", target, key, groupLabel(pos.Parent), pos.Name)

	seg, err := pos.Parent.Segment(key, 0)
	if err != nil {
		return nil, err
	}
	n.stack[top] = Position{Parent: pos.Parent, Name: key, Rep: 0}
	return seg, nil
}

func (n *Navigator) resolve(structure string) *schema.StructureDef {
	def, err := n.msg.Provider().ResolveStructure(n.msg.Version(), structure)
	if err != nil || def.Kind != schema.KindGroup {
		return nil
	}
	return def
}

func groupLabel(g *model.Group) string {
	if g.IsRoot() {
		return g.Name()
	}
	return g.Path()
}

func indexOf(decls []schema.ChildDef, key string) int {
	if key == "" {
		return -1
	}
	for i, d := range decls {
		if d.Name == key {
			return i
		}
	}
	return -1
}
