// Package model is the in-memory tree of an HL7v2 message.
//
// A Message is the root Group. Groups hold segments and nested groups in
// schema order, segments hold fields, and every field repetition is a Type:
// a Primitive value, a Composite of sub-types, or a Varies whose payload is
// chosen at runtime.
//
// Nodes are created lazily on first access and never removed. Repetitions
// only grow one past the current count, so the tree never has gaps.
package model

import (
	"github.com/gofhir/hl7v2/pkg/hl7err"
)

// Structure is a node of the group tree: *Group or *Segment.
type Structure interface {
	Name() string
	// Key is the child name in the parent group; it differs from Name for
	// duplicated segments (NTE2).
	Key() string
	Rep() int
	Parent() *Group
	Message() *Message
	IsEmpty() bool
	Location() hl7err.Location
}

// Type is a field or component value: *Primitive, *Composite or *Varies.
type Type interface {
	TypeName() string
	IsEmpty() bool
	// Extra holds trailing components present in the source text but not
	// declared for the type.
	Extra() *ExtraComponents
	Message() *Message
	Location() hl7err.Location
}

// ValueValidator checks primitive values as they are assigned. It returns the
// corrected value and, when the corrected value still fails, a DataType error.
type ValueValidator interface {
	ValidatePrimitive(version, typeName, value string) (string, error)
}

// Compile-time interface checks.
var (
	_ Structure = (*Group)(nil)
	_ Structure = (*Segment)(nil)
	_ Type      = (*Primitive)(nil)
	_ Type      = (*Composite)(nil)
	_ Type      = (*Varies)(nil)
)
