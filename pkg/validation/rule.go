// Package validation binds rules to HL7 versions and scopes and applies
// them to primitive values, parsed messages and encoded text.
//
// A Context holds the bindings. It implements model.ValueValidator, so a
// codec given a Context corrects and tests every primitive as it is decoded.
// A Validator runs the message and encoding rules of a Context and collects
// the failures as issues.
package validation

import (
	"strings"
	"sync/atomic"

	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/model"
)

// Any matches every version or scope.
const Any = "*"

// PrimitiveRule corrects and tests primitive values. Correct must be pure;
// Test sees the corrected value. By convention Test accepts "", and the
// explicit null "".
type PrimitiveRule interface {
	Correct(value string) string
	Test(value string) bool
	Description() string
}

// MessageRule checks a whole parsed message.
type MessageRule interface {
	Test(msg *model.Message) []*hl7err.Error
	Description() string
}

// EncodingRule checks raw message text before decoding.
type EncodingRule interface {
	Test(text string) []*hl7err.Error
	Description() string
}

// Binding ties a rule to a version pattern and a scope pattern. Patterns are
// Any or an exact string; message scopes are TYPE^EVENT where either part
// may be Any.
type Binding[R any] struct {
	Version string
	Scope   string
	Rule    R

	inactive atomic.Bool
	owner    *Context
}

// Active reports whether the binding takes part in lookups.
func (b *Binding[R]) Active() bool {
	return !b.inactive.Load()
}

// SetActive enables or disables the binding without removing it. The change
// applies to the next lookup.
func (b *Binding[R]) SetActive(active bool) {
	b.inactive.Store(!active)
	if b.owner != nil {
		b.owner.invalidate()
	}
}

func (b *Binding[R]) appliesTo(version string) bool {
	return b.Active() && matches(b.Version, version)
}

func matches(pattern, value string) bool {
	return pattern == Any || pattern == value
}

// matchesEvent matches TYPE^EVENT scopes part by part. A pattern without an
// event part matches every event of the type.
func matchesEvent(pattern, msgType, event string) bool {
	if pattern == Any {
		return true
	}
	pt, pe, hasEvent := strings.Cut(pattern, "^")
	if !matches(pt, msgType) {
		return false
	}
	return !hasEvent || matches(pe, event)
}

// IsNull reports whether v is empty or the explicit null "".
func IsNull(v string) bool {
	return v == "" || v == `""`
}
