package validation

import (
	"strconv"
	"unicode/utf8"

	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/issue"
	"github.com/gofhir/hl7v2/pkg/model"
	"github.com/gofhir/hl7v2/pkg/schema"
)

// StructureRule checks a message against its schema: required groups and
// segments are present, required fields hold a value, repetitions stay
// within bounds and values fit the declared length.
type StructureRule struct{}

// Description implements MessageRule.
func (StructureRule) Description() string {
	return "message conforms to its structure definition"
}

// Test implements MessageRule.
func (r StructureRule) Test(msg *model.Message) []*hl7err.Error {
	c := &structureCheck{msg: msg, ordinals: segmentOrdinals(msg)}
	c.group(msg.Group)
	return c.errs
}

type structureCheck struct {
	msg      *model.Message
	ordinals map[*model.Segment]int
	errs     []*hl7err.Error
}

func (c *structureCheck) group(g *model.Group) {
	for _, decl := range g.Children() {
		instances := g.GetAll(decl.Name)
		if decl.Required && len(instances) == 0 {
			c.missingChild(g, decl)
			continue
		}
		for _, s := range instances {
			switch n := s.(type) {
			case *model.Group:
				c.group(n)
			case *model.Segment:
				c.segment(n)
			}
		}
	}
}

func (c *structureCheck) missingChild(g *model.Group, decl schema.ChildDef) {
	kind := "segment"
	if decl.Kind == schema.KindGroup {
		kind = "group"
	}
	parent := g.Name()
	if !g.IsRoot() {
		parent = g.Path()
	}
	msg := issue.FormatDiagnostic(issue.DiagStructureRequired, map[string]any{
		"kind":   kind,
		"name":   schema.ShortName(decl.Structure),
		"parent": parent,
	})
	e := hl7err.Structural("%s", msg)
	e.Loc = g.Location()
	c.errs = append(c.errs, e)
}

func (c *structureCheck) segment(s *model.Segment) {
	if s.IsGeneric() {
		return
	}
	def := s.Def()
	for n := 1; n <= len(def.Fields); n++ {
		fd := def.Fields[n-1]
		reps := s.AllReps(n)
		field := s.Name() + "-" + strconv.Itoa(n)
		loc := c.fieldLocation(s, n, 0)

		if fd.MinReps > 0 && allEmpty(reps) {
			c.add(hl7err.Structural("%s", issue.FormatDiagnostic(issue.DiagFieldRequired, map[string]any{
				"field": field,
				"name":  fd.Name,
			})), loc)
			continue
		}
		if fd.MaxReps != schema.Unbounded && len(reps) > fd.MaxReps {
			loc.FieldRep = fd.MaxReps
			c.add(hl7err.Structural("%s", issue.FormatDiagnostic(issue.DiagFieldMaxReps, map[string]any{
				"field": field,
				"name":  fd.Name,
				"count": len(reps),
				"max":   fd.MaxReps,
			})), loc)
		}
		if fd.MaxLength <= 0 {
			continue
		}
		for i, t := range reps {
			if l := encodedLength(t); l > fd.MaxLength {
				at := c.fieldLocation(s, n, i)
				c.add(hl7err.DataType("%s", issue.FormatDiagnostic(issue.DiagFieldTooLong, map[string]any{
					"field":  field,
					"name":   fd.Name,
					"length": l,
					"max":    fd.MaxLength,
				})), at)
			}
		}
	}
}

func (c *structureCheck) fieldLocation(s *model.Segment, n, rep int) hl7err.Location {
	return hl7err.Location{
		Version:    c.msg.Version(),
		Segment:    s.Name(),
		SegmentRep: c.ordinals[s],
		Field:      n,
		FieldRep:   rep,
	}
}

func (c *structureCheck) add(e *hl7err.Error, loc hl7err.Location) {
	e.Loc = loc
	c.errs = append(c.errs, e)
}

// segmentOrdinals numbers every segment by its occurrence among segments of
// the same name, in message order. PID(1) is the second PID of the message
// whatever group it sits in.
func segmentOrdinals(msg *model.Message) map[*model.Segment]int {
	seen := make(map[string]int)
	out := make(map[*model.Segment]int)
	msg.Walk(func(s *model.Segment) error {
		out[s] = seen[s.Name()]
		seen[s.Name()]++
		return nil
	})
	return out
}

func allEmpty(reps []model.Type) bool {
	for _, t := range reps {
		if !t.IsEmpty() {
			return false
		}
	}
	return true
}

// encodedLength approximates the length of t once encoded, counting one
// character per separator between populated parts.
func encodedLength(t model.Type) int {
	var parts []int
	switch x := model.Unwrap(t).(type) {
	case *model.Primitive:
		parts = append(parts, utf8.RuneCountInString(x.String()))
	case *model.Composite:
		for _, comp := range x.Components() {
			parts = append(parts, encodedLength(comp))
		}
	}
	if extra := t.Extra(); extra != nil {
		for i := 0; i < extra.Len(); i++ {
			if v, ok := extra.Component(i); ok {
				parts = append(parts, encodedLength(v))
			}
		}
	}
	for len(parts) > 0 && parts[len(parts)-1] == 0 {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return 0
	}
	n := len(parts) - 1
	for _, p := range parts {
		n += p
	}
	return n
}
