package model

import (
	"errors"
	"fmt"

	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/schema"
)

// GenericStructure is the structure name of messages whose type is not in
// the schema. Its root declares only MSH; everything else is appended as
// non-standard segments.
const GenericStructure = "GENERIC"

var genericDef = &schema.StructureDef{
	Name: GenericStructure,
	Kind: schema.KindGroup,
	Children: []schema.ChildDef{
		{Name: "MSH", Structure: "MSH", Kind: schema.KindSegment, Required: true},
	},
}

// Message is the root group of a message tree.
type Message struct {
	*Group

	version   string
	provider  schema.Provider
	validator ValueValidator
	failFast  bool
	problems  []*hl7err.Error
}

// Option configures a Message.
type Option func(*Message)

// WithValidator applies v to every primitive assignment.
func WithValidator(v ValueValidator) Option {
	return func(m *Message) {
		m.validator = v
	}
}

// WithFailFast makes the first validation failure an error instead of a
// recorded problem.
func WithFailFast(enabled bool) Option {
	return func(m *Message) {
		m.failFast = enabled
	}
}

// New creates an empty message of the given structure.
func New(provider schema.Provider, version, structure string, opts ...Option) (*Message, error) {
	def, err := provider.ResolveStructure(version, structure)
	if err != nil {
		return nil, hl7err.Wrap(hl7err.KindStructural, err, "cannot create message %s", structure)
	}
	if def.Kind != schema.KindGroup {
		return nil, hl7err.Structural("%s is a segment, not a message structure", structure)
	}
	return newMessage(provider, version, def, opts...), nil
}

// NewGeneric creates a message that accepts any segment sequence.
func NewGeneric(provider schema.Provider, version string, opts ...Option) *Message {
	return newMessage(provider, version, genericDef, opts...)
}

func newMessage(provider schema.Provider, version string, def *schema.StructureDef, opts ...Option) *Message {
	m := &Message{version: version, provider: provider}
	m.Group = newGroup(def, def.Name, nil, m, 0)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Version returns the HL7 version the message was built for.
func (m *Message) Version() string { return m.version }

// Structure returns the message structure name, e.g. ADT_A01.
func (m *Message) Structure() string { return m.def.Name }

// IsGeneric reports whether the message structure was unknown.
func (m *Message) IsGeneric() bool { return m.def == genericDef }

// Provider returns the schema provider.
func (m *Message) Provider() schema.Provider { return m.provider }

// Validator returns the value validator, or nil.
func (m *Message) Validator() ValueValidator { return m.validator }

// SetValidator replaces the value validator.
func (m *Message) SetValidator(v ValueValidator) { m.validator = v }

// FailFast reports whether validation failures are returned as errors.
func (m *Message) FailFast() bool { return m.failFast }

// SetFailFast toggles fail-fast mode.
func (m *Message) SetFailFast(enabled bool) { m.failFast = enabled }

// Problems returns the recoveries and validation failures recorded so far.
func (m *Message) Problems() []*hl7err.Error {
	out := make([]*hl7err.Error, len(m.problems))
	copy(out, m.problems)
	return out
}

// AddProblem records a non-fatal problem.
func (m *Message) AddProblem(err error) {
	if err == nil {
		return
	}
	var e *hl7err.Error
	if !errors.As(err, &e) {
		e = hl7err.Wrap(hl7err.KindStructural, err, "")
	}
	if e.Loc.Version == "" {
		e.Loc.Version = m.version
	}
	m.problems = append(m.problems, e)
}

// report handles a validation failure according to the fail-fast setting.
func (m *Message) report(err error) error {
	if m.failFast {
		return err
	}
	m.AddProblem(err)
	return nil
}

// Segments returns every segment in schema order, depth first.
func (m *Message) Segments() []*Segment {
	var out []*Segment
	m.Walk(func(s *Segment) error {
		out = append(out, s)
		return nil
	})
	return out
}

// Walk calls fn for every segment in schema order, stopping at the first error.
func (m *Message) Walk(fn func(*Segment) error) error {
	return m.Group.walk(fn)
}

// Header returns the MSH segment, if present.
func (m *Message) Header() (*Segment, bool) {
	if m.Count("MSH") == 0 {
		return nil, false
	}
	s, err := m.Get("MSH", 0)
	if err != nil {
		return nil, false
	}
	seg, ok := s.(*Segment)
	return seg, ok
}

// String returns a short description for logs.
func (m *Message) String() string {
	return fmt.Sprintf("%s v%s", m.Structure(), m.version)
}

// resolveType returns the type definition or nil when it is unknown.
func (m *Message) resolveType(name string) *schema.TypeDef {
	if m.provider == nil || name == "" || name == schema.VariesType {
		return nil
	}
	def, err := m.provider.ResolveType(name, m.version)
	if err != nil {
		return nil
	}
	return def
}

// NewType creates an empty value of the named type. Unknown type names give a
// Varies holding a generic primitive. depth is 0 for fields, 1 for
// components and 2 for subcomponents; composites below subcomponent level
// are flattened to primitives.
func (m *Message) NewType(typeName string, loc hl7err.Location, depth int) Type {
	def := m.resolveType(typeName)
	switch {
	case def == nil:
		return newVaries(m, loc)
	case def.IsPrimitive() || depth >= 2:
		return newPrimitive(m, def.Name, loc)
	default:
		return newComposite(m, def, loc, depth)
	}
}
