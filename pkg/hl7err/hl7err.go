// Package hl7err defines the error taxonomy shared by the parser, navigator,
// terser and validation packages.
//
// Every error carries a Location. Location parts can be attached while an
// error unwinds through several navigation levels: At only fills parts that
// are still unset, so the innermost detail always wins.
package hl7err

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies an error.
type Kind int

// Error kinds.
const (
	KindStructural Kind = iota + 1
	KindDataType
	KindLookup
	KindPathSyntax
	KindEncoding
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindDataType:
		return "data-type"
	case KindLookup:
		return "lookup"
	case KindPathSyntax:
		return "path-syntax"
	case KindEncoding:
		return "encoding"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks.
var (
	ErrStructural = &Error{Kind: KindStructural}
	ErrDataType   = &Error{Kind: KindDataType}
	ErrLookup     = &Error{Kind: KindLookup}
	ErrPathSyntax = &Error{Kind: KindPathSyntax}
	ErrEncoding   = &Error{Kind: KindEncoding}
)

// Location pinpoints where in a message an error occurred.
// Repetitions are 0-based, positions (field, component, subcomponent) 1-based.
// Zero positions mean "not known".
type Location struct {
	Version      string
	Segment      string
	SegmentRep   int
	Field        int
	FieldRep     int
	Component    int
	Subcomponent int
}

// IsZero reports whether no part of the location is set.
func (l Location) IsZero() bool {
	return l == Location{}
}

// Path renders the location in terser notation, e.g. PID(0)-5(1)-2.
func (l Location) Path() string {
	if l.Segment == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(l.Segment)
	if l.SegmentRep > 0 {
		b.WriteString("(" + strconv.Itoa(l.SegmentRep) + ")")
	}
	if l.Field > 0 {
		b.WriteString("-" + strconv.Itoa(l.Field))
		if l.FieldRep > 0 {
			b.WriteString("(" + strconv.Itoa(l.FieldRep) + ")")
		}
		if l.Component > 0 {
			b.WriteString("-" + strconv.Itoa(l.Component))
			if l.Subcomponent > 0 {
				b.WriteString("-" + strconv.Itoa(l.Subcomponent))
			}
		}
	}
	return b.String()
}

// String renders the location including the version.
func (l Location) String() string {
	p := l.Path()
	if l.Version != "" {
		if p == "" {
			return "v" + l.Version
		}
		return p + " (v" + l.Version + ")"
	}
	return p
}

// merge fills unset parts of l from outer.
func (l *Location) merge(outer Location) {
	if l.Version == "" {
		l.Version = outer.Version
	}
	if l.Segment == "" {
		l.Segment = outer.Segment
		l.SegmentRep = outer.SegmentRep
	}
	if l.Field == 0 {
		l.Field = outer.Field
		l.FieldRep = outer.FieldRep
	}
	if l.Component == 0 {
		l.Component = outer.Component
	}
	if l.Subcomponent == 0 {
		l.Subcomponent = outer.Subcomponent
	}
}

// Error is the engine's error type.
type Error struct {
	Kind Kind
	Msg  string
	Loc  Location
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if loc := e.Loc.String(); loc != "" {
		b.WriteString(" at ")
		b.WriteString(loc)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrStructural) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Structural creates a StructuralError.
func Structural(format string, args ...any) *Error {
	return newf(KindStructural, format, args...)
}

// DataType creates a DataTypeError.
func DataType(format string, args ...any) *Error {
	return newf(KindDataType, format, args...)
}

// Lookup creates a LookupError.
func Lookup(format string, args ...any) *Error {
	return newf(KindLookup, format, args...)
}

// PathSyntax creates a PathSyntaxError.
func PathSyntax(format string, args ...any) *Error {
	return newf(KindPathSyntax, format, args...)
}

// Encoding creates an error for unreadable input.
func Encoding(format string, args ...any) *Error {
	return newf(KindEncoding, format, args...)
}

// Wrap wraps cause in an error of the given kind.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	e := newf(kind, format, args...)
	e.Err = cause
	return e
}

// At attaches location parts to err. Parts already set on an inner *Error are
// kept. Errors that are not *Error are wrapped as structural errors.
func At(err error, loc Location) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		e.Loc.merge(loc)
		return err
	}
	return &Error{Kind: KindStructural, Loc: loc, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// LocationOf returns the location of the first *Error in err's chain.
func LocationOf(err error) Location {
	var e *Error
	if errors.As(err, &e) {
		return e.Loc
	}
	return Location{}
}
