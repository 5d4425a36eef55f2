// Package schema describes HL7v2 message structures: which groups and segments
// a message declares, the field layout of each segment and the component layout
// of each composite data type.
//
// Descriptors are plain data. They are produced by loaders (see hclschema) and
// served read-only through the Provider interface.
package schema

import (
	"errors"
	"strings"
)

// Errors returned by providers.
var (
	ErrUnknownVersion = errors.New("unknown HL7 version")
	ErrNotFound       = errors.New("definition not found")
)

// Kind distinguishes segments from groups.
type Kind int

// Structure kinds.
const (
	KindSegment Kind = iota + 1
	KindGroup
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSegment:
		return "segment"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Unbounded is the MaxReps value of fields without a repetition limit.
const Unbounded = 0

// VariesType is the type name of fields whose data type is chosen at runtime.
const VariesType = "varies"

// ChildDef declares one child of a group.
type ChildDef struct {
	// Name is the key of the child inside its parent. It equals the structure
	// name except for duplicated segments (NTE2) and groups.
	Name string
	// Structure is the name used to resolve the child definition:
	// "PID" for segments, "ADT_A01.PROCEDURE" for groups.
	Structure string
	Kind      Kind
	Required  bool
	Repeating bool
}

// SegmentName returns the segment name this child matches, or "" for groups.
func (c ChildDef) SegmentName() string {
	if c.Kind != KindSegment {
		return ""
	}
	return c.Structure
}

// FieldDef declares one field of a segment.
type FieldDef struct {
	Name      string
	Type      string
	MinReps   int
	MaxReps   int // Unbounded for no limit
	MaxLength int // 0 for no limit
	Table     string
	// TypeFrom is the 1-based position of a sibling field whose value names
	// the data type of this field (OBX-5 takes its type from OBX-2).
	TypeFrom int
}

// Required reports whether at least one repetition must be valued.
func (f FieldDef) Required() bool {
	return f.MinReps > 0
}

// Repeating reports whether more than one repetition is allowed.
func (f FieldDef) Repeating() bool {
	return f.MaxReps == Unbounded || f.MaxReps > 1
}

// StructureDef describes a message, group or segment.
type StructureDef struct {
	Name     string
	Kind     Kind
	Children []ChildDef // groups and messages
	Fields   []FieldDef // segments
}

// Child returns the declared child with the given key.
func (d *StructureDef) Child(name string) (ChildDef, bool) {
	for _, c := range d.Children {
		if c.Name == name {
			return c, true
		}
	}
	return ChildDef{}, false
}

// Field returns the 1-based field definition, if declared.
func (d *StructureDef) Field(n int) (FieldDef, bool) {
	if n < 1 || n > len(d.Fields) {
		return FieldDef{}, false
	}
	return d.Fields[n-1], true
}

// ComponentDef declares one component of a composite type.
type ComponentDef struct {
	Name      string
	Type      string
	MaxLength int
	Table     string
}

// TypeDef describes a data type. A type without components is primitive.
type TypeDef struct {
	Name       string
	Components []ComponentDef
}

// IsPrimitive reports whether the type has no components.
func (t *TypeDef) IsPrimitive() bool {
	return len(t.Components) == 0
}

// Provider resolves definitions per HL7 version.
type Provider interface {
	ResolveStructure(version, name string) (*StructureDef, error)
	ResolveType(typeName, version string) (*TypeDef, error)
	// MessageStructure maps a message type and trigger event to the structure
	// that defines it, e.g. ADT^A04 to ADT_A01.
	MessageStructure(version, messageType, event string) (string, bool)
}

// GroupStructureName returns the qualified structure name of a group declared
// inside parent, e.g. ("ORU_R01", "PATIENT_RESULT") gives "ORU_R01.PATIENT_RESULT".
func GroupStructureName(parent, group string) string {
	return parent + "." + group
}

// ShortName strips the message qualifier from a group structure name.
func ShortName(structure string) string {
	if i := strings.LastIndexByte(structure, '.'); i >= 0 {
		return structure[i+1:]
	}
	return structure
}
