// Package issue collects validation findings for HL7v2 messages.
package issue

import (
	"errors"
	"sync"

	"github.com/gofhir/hl7v2/pkg/hl7err"
)

// Severity represents the severity of a validation issue.
type Severity string

// Severity constants.
const (
	SeverityFatal       Severity = "fatal"
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Code classifies an issue.
type Code string

// Code constants.
const (
	CodeInvalid       Code = "invalid"
	CodeStructure     Code = "structure"
	CodeRequired      Code = "required"
	CodeValue         Code = "value"
	CodeTooLong       Code = "too-long"
	CodeCodeInvalid   Code = "code-invalid"
	CodeInvariant     Code = "invariant"
	CodeNotFound      Code = "not-found"
	CodeProcessing    Code = "processing"
	CodeNotSupported  Code = "not-supported"
	CodeInformational Code = "informational"
)

// Issue represents a single validation issue.
type Issue struct {
	// Severity indicates the severity level (error, warning, etc.)
	Severity Severity

	// Code indicates the type of issue
	Code Code

	// Diagnostics is the human-readable description of the issue
	Diagnostics string

	// Expression holds the HL7 location of the issue, e.g. PID(0)-3(1)-2.
	Expression []string

	// Location is the line and column in the encoded message, when known.
	Location *Location

	// Source names the rule that reported the issue.
	Source string

	// MessageID is the identifier from the diagnostic catalog.
	MessageID string
}

// Location is a position in encoded text. Lines and columns are 1-based.
type Location struct {
	Line   int
	Column int
}

// Stats contains validation statistics.
type Stats struct {
	// Structure is the message structure validated, e.g. ADT_A01.
	Structure string
	// Version is the HL7 version of the message.
	Version string
	// Size is the size of the encoded input in bytes, 0 for parsed messages.
	Size int
	// Duration is the total validation time
	Duration int64 // nanoseconds
	// SegmentsChecked is the number of segments visited.
	SegmentsChecked int
	// RulesRun is the number of rules applied.
	RulesRun int
}

// DurationMs returns the duration in milliseconds.
func (s *Stats) DurationMs() float64 {
	return float64(s.Duration) / 1e6
}

// Result holds the collection of issues from validation.
type Result struct {
	Issues []Issue
	Stats  *Stats
}

const defaultIssueCapacity = 16

var resultPool = sync.Pool{
	New: func() any {
		return &Result{
			Issues: make([]Issue, 0, defaultIssueCapacity),
		}
	},
}

// NewResult creates a new empty Result with pre-allocated capacity.
func NewResult() *Result {
	return &Result{
		Issues: make([]Issue, 0, defaultIssueCapacity),
	}
}

// GetPooledResult returns a Result from the pool.
// Call ReleaseResult when done to return it to the pool.
func GetPooledResult() *Result {
	r, ok := resultPool.Get().(*Result)
	if !ok {
		r = NewResult()
	}
	r.Issues = r.Issues[:0]
	r.Stats = nil
	return r
}

// ReleaseResult returns a Result to the pool for reuse.
// Do not use the Result after calling this function.
func ReleaseResult(r *Result) {
	if r == nil {
		return
	}
	for i := range r.Issues {
		r.Issues[i] = Issue{}
	}
	r.Issues = r.Issues[:0]
	r.Stats = nil
	resultPool.Put(r)
}

// AddIssue adds an issue to the result.
func (r *Result) AddIssue(issue Issue) {
	r.Issues = append(r.Issues, issue)
}

// AddError adds an error-level issue.
func (r *Result) AddError(code Code, diagnostics string, expression ...string) {
	r.add(SeverityError, code, diagnostics, expression)
}

// AddWarning adds a warning-level issue.
func (r *Result) AddWarning(code Code, diagnostics string, expression ...string) {
	r.add(SeverityWarning, code, diagnostics, expression)
}

// AddInfo adds an information-level issue.
func (r *Result) AddInfo(code Code, diagnostics string, expression ...string) {
	r.add(SeverityInformation, code, diagnostics, expression)
}

func (r *Result) add(sev Severity, code Code, diagnostics string, expression []string) {
	r.Issues = append(r.Issues, Issue{
		Severity:    sev,
		Code:        code,
		Diagnostics: diagnostics,
		Expression:  expression,
	})
}

// AddErr converts an error into an error-level issue. The code follows the
// hl7err kind and the expression is the error location.
func (r *Result) AddErr(err error, source string) {
	if err == nil {
		return
	}
	is := Issue{
		Severity:    SeverityError,
		Code:        codeOf(err),
		Diagnostics: err.Error(),
		Source:      source,
	}
	var e *hl7err.Error
	if errors.As(err, &e) {
		is.Diagnostics = e.Msg
		if e.Err != nil {
			is.Diagnostics += ": " + e.Err.Error()
		}
		if p := e.Loc.Path(); p != "" {
			is.Expression = []string{p}
		}
	}
	r.Issues = append(r.Issues, is)
}

func codeOf(err error) Code {
	switch hl7err.KindOf(err) {
	case hl7err.KindStructural:
		return CodeStructure
	case hl7err.KindDataType:
		return CodeValue
	case hl7err.KindLookup:
		return CodeNotFound
	case hl7err.KindPathSyntax:
		return CodeInvalid
	case hl7err.KindEncoding:
		return CodeInvalid
	default:
		return CodeProcessing
	}
}

// HasErrors returns true if there are any error-level issues.
func (r *Result) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError || issue.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error-level issues.
func (r *Result) ErrorCount() int {
	return r.count(func(s Severity) bool { return s == SeverityError || s == SeverityFatal })
}

// WarningCount returns the number of warning-level issues.
func (r *Result) WarningCount() int {
	return r.count(func(s Severity) bool { return s == SeverityWarning })
}

// InfoCount returns the number of information-level issues.
func (r *Result) InfoCount() int {
	return r.count(func(s Severity) bool { return s == SeverityInformation })
}

func (r *Result) count(match func(Severity) bool) int {
	n := 0
	for _, issue := range r.Issues {
		if match(issue.Severity) {
			n++
		}
	}
	return n
}

// Merge combines another result into this one.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Issues = append(r.Issues, other.Issues...)
}

// Filter returns a new Result with only issues matching the given severity.
func (r *Result) Filter(severity Severity) *Result {
	filtered := NewResult()
	for _, issue := range r.Issues {
		if issue.Severity == severity {
			filtered.Issues = append(filtered.Issues, issue)
		}
	}
	return filtered
}

// EnrichLocations fills in line and column information from the first
// expression of each issue that has none yet.
func (r *Result) EnrichLocations(locator func(expression string) *Location) {
	if locator == nil {
		return
	}
	for i := range r.Issues {
		if len(r.Issues[i].Expression) > 0 && r.Issues[i].Location == nil {
			if loc := locator(r.Issues[i].Expression[0]); loc != nil {
				r.Issues[i].Location = loc
			}
		}
	}
}
