package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// TrimLeadingWhitespace removes leading spaces and tabs. It never fails.
type TrimLeadingWhitespace struct{}

// Correct implements PrimitiveRule.
func (TrimLeadingWhitespace) Correct(value string) string {
	return strings.TrimLeft(value, " \t")
}

// Test implements PrimitiveRule.
func (TrimLeadingWhitespace) Test(string) bool { return true }

// Description implements PrimitiveRule.
func (TrimLeadingWhitespace) Description() string {
	return "leading whitespace removed"
}

// SizeRule limits the number of characters in a value.
type SizeRule struct {
	Max int
}

// Correct implements PrimitiveRule.
func (r SizeRule) Correct(value string) string { return value }

// Test implements PrimitiveRule.
func (r SizeRule) Test(value string) bool {
	return IsNull(value) || utf8.RuneCountInString(value) <= r.Max
}

// Description implements PrimitiveRule.
func (r SizeRule) Description() string {
	return fmt.Sprintf("at most %d characters", r.Max)
}

// RegexRule accepts values matching a pattern in full.
type RegexRule struct {
	pattern *regexp.Regexp
	desc    string
}

// NewRegexRule compiles pattern, anchored at both ends.
func NewRegexRule(pattern, description string) (*RegexRule, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return &RegexRule{pattern: re, desc: description}, nil
}

// MustRegexRule is NewRegexRule for patterns known to compile.
func MustRegexRule(pattern, description string) *RegexRule {
	r, err := NewRegexRule(pattern, description)
	if err != nil {
		panic(err)
	}
	return r
}

// Correct implements PrimitiveRule.
func (r *RegexRule) Correct(value string) string { return value }

// Test implements PrimitiveRule.
func (r *RegexRule) Test(value string) bool {
	return IsNull(value) || r.pattern.MatchString(value)
}

// Description implements PrimitiveRule.
func (r *RegexRule) Description() string { return r.desc }

// Patterns of the formatted primitive types.
const (
	PatternNM  = `[+-]?(\d+\.?\d*|\.\d+)`
	PatternSI  = `\d+`
	PatternDT  = `\d{4}((0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])?)?`
	PatternTM  = `([01]\d|2[0-3])([0-5]\d([0-5]\d(\.\d{1,4})?)?)?([+-]\d{4})?`
	PatternDTM = `\d{4}((0[1-9]|1[0-2])((0[1-9]|[12]\d|3[01])(([01]\d|2[0-3])([0-5]\d([0-5]\d(\.\d{1,4})?)?)?)?)?)?([+-]\d{4})?`
	PatternID  = `\S(.*\S)?`
)

// formattedTypes lists the types whose values follow a pattern, with the
// pattern and its maximum size.
var formattedTypes = []struct {
	typeName string
	pattern  string
	desc     string
	size     int
}{
	{"NM", PatternNM, "a number, e.g. -12.5", 16},
	{"SI", PatternSI, "a non-negative integer", 4},
	{"DT", PatternDT, "a date YYYY[MM[DD]]", 8},
	{"TM", PatternTM, "a time HH[MM[SS[.S]]][+/-ZZZZ]", 16},
	{"DTM", PatternDTM, "a timestamp YYYY[MM[DD[HH[MM[SS[.S]]]]]][+/-ZZZZ]", 24},
	{"TS", PatternDTM, "a timestamp YYYY[MM[DD[HH[MM[SS[.S]]]]]][+/-ZZZZ]", 26},
	{"ID", PatternID, "a code without surrounding whitespace", 0},
	{"IS", PatternID, "a code without surrounding whitespace", 0},
}
