package model

import (
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/schema"
)

// GenericTypeName is the type name of values the schema does not describe.
const GenericTypeName = "UNKNOWN"

// ExtraComponents holds trailing components found in the source text beyond
// the declared width of a type, so that they survive a round trip.
type ExtraComponents struct {
	msg   *Message
	loc   hl7err.Location
	width int // declared components before the first extra one
	comps []*Varies
}

func newExtra(msg *Message, loc hl7err.Location, width int) *ExtraComponents {
	return &ExtraComponents{msg: msg, loc: loc, width: width}
}

// Len returns the number of extra components.
func (e *ExtraComponents) Len() int { return len(e.comps) }

// Get returns extra component i (0-based), creating it and any before it.
func (e *ExtraComponents) Get(i int) *Varies {
	for len(e.comps) <= i {
		e.comps = append(e.comps, newVaries(e.msg, childLocation(e.loc, e.width+len(e.comps))))
	}
	return e.comps[i]
}

// Component returns extra component i without creating it.
func (e *ExtraComponents) Component(i int) (*Varies, bool) {
	if i < 0 || i >= len(e.comps) {
		return nil, false
	}
	return e.comps[i], true
}

// IsEmpty reports whether every extra component is empty.
func (e *ExtraComponents) IsEmpty() bool {
	for _, c := range e.comps {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// childLocation returns the location of the 0-based child i of a type at loc.
func childLocation(loc hl7err.Location, i int) hl7err.Location {
	switch {
	case loc.Component == 0:
		loc.Component = i + 1
	case loc.Subcomponent == 0:
		loc.Subcomponent = i + 1
	}
	return loc
}

// depthOf returns 0 for field level, 1 for components and 2 for subcomponents.
func depthOf(loc hl7err.Location) int {
	switch {
	case loc.Subcomponent > 0:
		return 2
	case loc.Component > 0:
		return 1
	default:
		return 0
	}
}

// Primitive is a single nullable string value.
type Primitive struct {
	typeName string
	value    *string
	msg      *Message
	loc      hl7err.Location
	extra    *ExtraComponents
}

func newPrimitive(msg *Message, typeName string, loc hl7err.Location) *Primitive {
	return &Primitive{
		typeName: typeName,
		msg:      msg,
		loc:      loc,
		extra:    newExtra(msg, loc, 1),
	}
}

// TypeName returns the data type, e.g. ST.
func (p *Primitive) TypeName() string { return p.typeName }

// IsGeneric reports whether the primitive stands in for unknown content.
func (p *Primitive) IsGeneric() bool { return p.typeName == GenericTypeName }

// Value returns the value and whether one was assigned.
func (p *Primitive) Value() (string, bool) {
	if p.value == nil {
		return "", false
	}
	return *p.value, true
}

// String returns the value or "".
func (p *Primitive) String() string {
	if p.value == nil {
		return ""
	}
	return *p.value
}

// SetValue assigns v after passing it through the message validator. The
// corrected value is always kept. A failing value is returned as an error in
// fail-fast mode and recorded on the message otherwise.
func (p *Primitive) SetValue(v string) error {
	val := p.msg.validator
	if val == nil {
		p.value = &v
		return nil
	}
	corrected, err := val.ValidatePrimitive(p.msg.version, p.typeName, v)
	p.value = &corrected
	if err != nil {
		return p.msg.report(hl7err.At(err, p.loc))
	}
	return nil
}

// Clear removes the value.
func (p *Primitive) Clear() { p.value = nil }

// IsEmpty reports whether the value is unset or empty and there are no extras.
func (p *Primitive) IsEmpty() bool {
	return (p.value == nil || *p.value == "") && p.extra.IsEmpty()
}

// Extra returns the undeclared trailing components.
func (p *Primitive) Extra() *ExtraComponents { return p.extra }

// Message returns the owning message.
func (p *Primitive) Message() *Message { return p.msg }

// Location returns where the value sits in the message.
func (p *Primitive) Location() hl7err.Location { return p.loc }

// Composite is a fixed-width array of sub-types. Generic composites have no
// declared width and grow on access.
type Composite struct {
	typeName string
	def      *schema.TypeDef
	comps    []Type
	msg      *Message
	loc      hl7err.Location
	extra    *ExtraComponents
}

func newComposite(msg *Message, def *schema.TypeDef, loc hl7err.Location, depth int) *Composite {
	c := &Composite{
		typeName: def.Name,
		def:      def,
		msg:      msg,
		loc:      loc,
		extra:    newExtra(msg, loc, len(def.Components)),
	}
	c.comps = make([]Type, len(def.Components))
	for i, cd := range def.Components {
		c.comps[i] = msg.NewType(cd.Type, childLocation(loc, i), depth+1)
	}
	return c
}

// NewGenericComposite creates a composite of unknown type.
func NewGenericComposite(msg *Message, loc hl7err.Location) *Composite {
	return &Composite{
		typeName: GenericTypeName,
		msg:      msg,
		loc:      loc,
		extra:    newExtra(msg, loc, 0),
	}
}

// TypeName returns the data type, e.g. CX.
func (c *Composite) TypeName() string { return c.typeName }

// Def returns the type definition, nil for generic composites.
func (c *Composite) Def() *schema.TypeDef { return c.def }

// IsGeneric reports whether the composite has no declared width.
func (c *Composite) IsGeneric() bool { return c.def == nil }

// Len returns the number of components.
func (c *Composite) Len() int { return len(c.comps) }

// Components returns the components in order.
func (c *Composite) Components() []Type {
	out := make([]Type, len(c.comps))
	copy(out, c.comps)
	return out
}

// Component returns the 0-based component i. Declared composites reject
// indexes past their width; generic composites grow.
func (c *Composite) Component(i int) (Type, error) {
	if i < 0 {
		return nil, c.boundsErr(i)
	}
	if i < len(c.comps) {
		return c.comps[i], nil
	}
	if c.def != nil {
		return nil, c.boundsErr(i)
	}
	for len(c.comps) <= i {
		c.comps = append(c.comps, newVaries(c.msg, childLocation(c.loc, len(c.comps))))
	}
	return c.comps[i], nil
}

func (c *Composite) boundsErr(i int) error {
	err := hl7err.Structural("component %d out of range for %s with %d components", i+1, c.typeName, len(c.comps))
	err.Loc = c.loc
	return err
}

// IsEmpty reports whether every component is empty.
func (c *Composite) IsEmpty() bool {
	for _, t := range c.comps {
		if !t.IsEmpty() {
			return false
		}
	}
	return c.extra.IsEmpty()
}

// Extra returns the undeclared trailing components.
func (c *Composite) Extra() *ExtraComponents { return c.extra }

// Message returns the owning message.
func (c *Composite) Message() *Message { return c.msg }

// Location returns where the composite sits in the message.
func (c *Composite) Location() hl7err.Location { return c.loc }

// Varies wraps a value whose type is decided at runtime. Its default payload
// is a generic primitive.
type Varies struct {
	data Type
	msg  *Message
	loc  hl7err.Location
}

func newVaries(msg *Message, loc hl7err.Location) *Varies {
	return &Varies{data: newPrimitive(msg, GenericTypeName, loc), msg: msg, loc: loc}
}

// Data returns the payload.
func (v *Varies) Data() Type { return v.data }

// SetData replaces the payload. Nested Varies are unwrapped.
func (v *Varies) SetData(t Type) {
	for {
		inner, ok := t.(*Varies)
		if !ok {
			break
		}
		t = inner.data
	}
	v.data = t
}

// Generalize swaps a generic primitive payload for a generic composite so
// that components can be addressed. The primitive value becomes the first
// component.
func (v *Varies) Generalize() *Composite {
	if c, ok := v.data.(*Composite); ok {
		return c
	}
	c := NewGenericComposite(v.msg, v.loc)
	if p, ok := v.data.(*Primitive); ok {
		if val, set := p.Value(); set {
			first, _ := c.Component(0)
			FirstPrimitive(first).value = &val
		}
		for i, ev := range p.extra.comps {
			comp, _ := c.Component(i + 1)
			comp.(*Varies).SetData(ev.data)
		}
	}
	v.data = c
	return c
}

// TypeName returns the payload type name.
func (v *Varies) TypeName() string { return v.data.TypeName() }

// IsEmpty reports whether the payload is empty.
func (v *Varies) IsEmpty() bool { return v.data.IsEmpty() }

// Extra returns the payload extras.
func (v *Varies) Extra() *ExtraComponents { return v.data.Extra() }

// Message returns the owning message.
func (v *Varies) Message() *Message { return v.msg }

// Location returns where the value sits in the message.
func (v *Varies) Location() hl7err.Location { return v.loc }

// Depth returns 0 for fields, 1 for components and 2 for subcomponents.
func Depth(t Type) int {
	return depthOf(t.Location())
}

// Unwrap returns the payload of a Varies, or t itself.
func Unwrap(t Type) Type {
	if v, ok := t.(*Varies); ok {
		return v.data
	}
	return t
}

// FirstPrimitive returns the primitive at t or at its first component,
// descending as needed. It returns nil for empty generic composites.
func FirstPrimitive(t Type) *Primitive {
	for t != nil {
		switch n := Unwrap(t).(type) {
		case *Primitive:
			return n
		case *Composite:
			if len(n.comps) == 0 {
				return nil
			}
			t = n.comps[0]
		default:
			return nil
		}
	}
	return nil
}
