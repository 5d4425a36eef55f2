// Package delimiter holds the HL7v2 encoding characters and the escape rules
// built on them.
package delimiter

import (
	"fmt"
	"strings"
)

// Default delimiter characters.
const (
	DefaultField        = '|'
	DefaultComponent    = '^'
	DefaultRepetition   = '~'
	DefaultEscape       = '\\'
	DefaultSubcomponent = '&'

	// SegmentTerminator is the segment separator written on output.
	SegmentTerminator = '\r'
)

// Level identifies one layer of the delimiter hierarchy.
type Level int

// Delimiter levels, outermost first.
const (
	LevelField Level = iota
	LevelRepetition
	LevelComponent
	LevelSubcomponent
)

// Set is the delimiter set declared by MSH-1 and MSH-2.
type Set struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	Subcomponent byte
}

// Default returns the standard | ^ ~ \ & set.
func Default() Set {
	return Set{
		Field:        DefaultField,
		Component:    DefaultComponent,
		Repetition:   DefaultRepetition,
		Escape:       DefaultEscape,
		Subcomponent: DefaultSubcomponent,
	}
}

// New builds a set from the field separator and the MSH-2 encoding characters.
// Encoding characters shorter than four are completed with the defaults.
func New(field byte, encChars string) (Set, error) {
	s := Default()
	s.Field = field
	if len(encChars) > 0 {
		s.Component = encChars[0]
	}
	if len(encChars) > 1 {
		s.Repetition = encChars[1]
	}
	if len(encChars) > 2 {
		s.Escape = encChars[2]
	}
	if len(encChars) > 3 {
		s.Subcomponent = encChars[3]
	}
	if err := s.Validate(); err != nil {
		return Set{}, err
	}
	return s, nil
}

// FromMSH reads the delimiter set from the first line of an ER7 message.
func FromMSH(line string) (Set, error) {
	if len(line) < 4 || !isHeader(line[:3]) {
		return Set{}, fmt.Errorf("segment %q does not declare delimiters", truncate(line, 8))
	}
	field := line[3]
	rest := line[4:]
	end := strings.IndexByte(rest, field)
	if end < 0 {
		end = len(rest)
	}
	enc := rest[:end]
	if len(enc) > 4 {
		enc = enc[:4]
	}
	return New(field, enc)
}

func isHeader(name string) bool {
	return name == "MSH" || name == "FHS" || name == "BHS"
}

// Validate checks that every delimiter is distinct and printable.
func (s Set) Validate() error {
	chars := []byte{s.Field, s.Component, s.Repetition, s.Escape, s.Subcomponent}
	for i, c := range chars {
		if c < 0x20 || c > 0x7e || isAlnum(c) {
			return fmt.Errorf("invalid delimiter character %q", c)
		}
		for j := i + 1; j < len(chars); j++ {
			if chars[j] == c {
				return fmt.Errorf("delimiter %q is used twice", c)
			}
		}
	}
	return nil
}

// EncodingCharacters returns the MSH-2 text for this set.
func (s Set) EncodingCharacters() string {
	return string([]byte{s.Component, s.Repetition, s.Escape, s.Subcomponent})
}

// Separator returns the delimiter used at the given level.
func (s Set) Separator(l Level) byte {
	switch l {
	case LevelField:
		return s.Field
	case LevelRepetition:
		return s.Repetition
	case LevelComponent:
		return s.Component
	default:
		return s.Subcomponent
	}
}

// String returns MSH-1 followed by MSH-2.
func (s Set) String() string {
	return string(s.Field) + s.EncodingCharacters()
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
