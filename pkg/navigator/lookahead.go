package navigator

import (
	"github.com/gofhir/hl7v2/pkg/schema"
)

// MatchExistsAfterPosition reports whether a segment named name is declared
// after pos in its group. It looks at the schema only, never at live
// instances.
//
// With firstDescendantOnly the scan stops after the first sibling; with
// upToFirstRequired it stops after the first required sibling instead. The
// same limits apply inside sibling groups. Both false searches everything
// after pos.
func MatchExistsAfterPosition(pos Position, name string, firstDescendantOnly, upToFirstRequired bool) bool {
	g := pos.Parent
	if g == nil {
		return false
	}
	msg := g.Message()
	decls := g.Children()
	return scan(msg.Provider(), msg.Version(), decls[indexOf(decls, pos.Name)+1:], name, firstDescendantOnly, upToFirstRequired)
}

// Contains reports whether def declares a segment named name, searching
// nested groups. The flags limit the search as for MatchExistsAfterPosition;
// Contains(p, v, def, name, true, true) tells whether name can start a new
// instance of def.
func Contains(p schema.Provider, version string, def *schema.StructureDef, name string, firstDescendantOnly, upToFirstRequired bool) bool {
	if def == nil {
		return false
	}
	return scan(p, version, def.Children, name, firstDescendantOnly, upToFirstRequired)
}

func scan(p schema.Provider, version string, decls []schema.ChildDef, name string, firstDescendantOnly, upToFirstRequired bool) bool {
	for _, d := range decls {
		switch d.Kind {
		case schema.KindSegment:
			if d.Structure == name {
				return true
			}
		case schema.KindGroup:
			if p != nil {
				if def, err := p.ResolveStructure(version, d.Structure); err == nil &&
					Contains(p, version, def, name, firstDescendantOnly, upToFirstRequired) {
					return true
				}
			}
		}
		if upToFirstRequired && d.Required {
			return false
		}
		if firstDescendantOnly && !upToFirstRequired {
			return false
		}
	}
	return false
}
