package issue

import (
	"fmt"
	"strings"
)

// DiagnosticID identifies a specific diagnostic message.
type DiagnosticID string

// Diagnostic IDs for structure checks.
const (
	DiagStructureRequired    DiagnosticID = "STRUCTURE_REQUIRED"
	DiagStructureNonstandard DiagnosticID = "STRUCTURE_NONSTANDARD"
	DiagStructureProblem     DiagnosticID = "STRUCTURE_PROBLEM"
)

// Diagnostic IDs for field checks.
const (
	DiagFieldRequired DiagnosticID = "FIELD_REQUIRED"
	DiagFieldMaxReps  DiagnosticID = "FIELD_MAX_REPS"
	DiagFieldTooLong  DiagnosticID = "FIELD_TOO_LONG"
)

// Diagnostic IDs for primitive values.
const (
	DiagValueFormat DiagnosticID = "VALUE_FORMAT"
)

// Diagnostic IDs for code tables.
const (
	DiagCodeNotInTable   DiagnosticID = "CODE_NOT_IN_TABLE"
	DiagTableUnavailable DiagnosticID = "TABLE_UNAVAILABLE"
)

// Diagnostic IDs for expression rules.
const (
	DiagExpressionFailed DiagnosticID = "EXPRESSION_FAILED"
	DiagExpressionError  DiagnosticID = "EXPRESSION_ERROR"
)

// Diagnostic IDs for encoded text.
const (
	DiagEncodingSegmentLine DiagnosticID = "ENCODING_SEGMENT_LINE"
	DiagEncodingXML         DiagnosticID = "ENCODING_XML"
	DiagEncodingUnreadable  DiagnosticID = "ENCODING_UNREADABLE"
)

// DiagnosticTemplate defines the structure for a diagnostic message.
type DiagnosticTemplate struct {
	ID       DiagnosticID
	Severity Severity
	Code     Code
	Template string
}

// diagnosticTemplates maps diagnostic IDs to their templates.
// Templates use {placeholder} syntax for variable substitution.
var diagnosticTemplates = map[DiagnosticID]DiagnosticTemplate{
	DiagStructureRequired: {
		Severity: SeverityError,
		Code:     CodeRequired,
		Template: "Required {kind} {name} is missing in {parent}",
	},
	DiagStructureNonstandard: {
		Severity: SeverityWarning,
		Code:     CodeStructure,
		Template: "Segment {name} is not declared in {parent}",
	},
	DiagStructureProblem: {
		Severity: SeverityWarning,
		Code:     CodeStructure,
		Template: "{details}",
	},
	DiagFieldRequired: {
		Severity: SeverityError,
		Code:     CodeRequired,
		Template: "Required field {field} ({name}) is empty",
	},
	DiagFieldMaxReps: {
		Severity: SeverityError,
		Code:     CodeStructure,
		Template: "Field {field} ({name}) has {count} repetitions, at most {max} allowed",
	},
	DiagFieldTooLong: {
		Severity: SeverityError,
		Code:     CodeTooLong,
		Template: "Field {field} ({name}) is {length} characters long, at most {max} allowed",
	},
	DiagValueFormat: {
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "Value '{value}' is not a valid {type}",
	},
	DiagCodeNotInTable: {
		Severity: SeverityError,
		Code:     CodeCodeInvalid,
		Template: "Code '{value}' is not in HL7 table {table}",
	},
	DiagTableUnavailable: {
		Severity: SeverityInformation,
		Code:     CodeNotFound,
		Template: "Table {table} could not be checked: {error}",
	},
	DiagExpressionFailed: {
		Severity: SeverityError,
		Code:     CodeInvariant,
		Template: "{description}: '{expression}' is false",
	},
	DiagExpressionError: {
		Severity: SeverityWarning,
		Code:     CodeProcessing,
		Template: "Could not evaluate '{expression}': {error}",
	},
	DiagEncodingSegmentLine: {
		Severity: SeverityError,
		Code:     CodeInvalid,
		Template: "Line {line} is not a segment: '{text}'",
	},
	DiagEncodingXML: {
		Severity: SeverityError,
		Code:     CodeInvalid,
		Template: "Malformed XML: {error}",
	},
	DiagEncodingUnreadable: {
		Severity: SeverityFatal,
		Code:     CodeInvalid,
		Template: "Message cannot be read: {error}",
	},
}

// FormatDiagnostic formats a diagnostic message with the given parameters.
func FormatDiagnostic(id DiagnosticID, params map[string]any) string {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		return string(id)
	}
	return formatTemplate(tmpl.Template, params)
}

// GetDiagnosticTemplate returns the template for a diagnostic ID.
func GetDiagnosticTemplate(id DiagnosticID) (DiagnosticTemplate, bool) {
	tmpl, ok := diagnosticTemplates[id]
	if ok {
		tmpl.ID = id
	}
	return tmpl, ok
}

// formatTemplate replaces {placeholder} with values from params.
func formatTemplate(template string, params map[string]any) string {
	result := template
	for key, value := range params {
		result = strings.ReplaceAll(result, "{"+key+"}", fmt.Sprint(value))
	}
	return result
}

// AddWithID adds an issue using a diagnostic template and its severity.
func (r *Result) AddWithID(id DiagnosticID, params map[string]any, expression ...string) {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		r.AddError(CodeProcessing, string(id), expression...)
		return
	}
	r.Issues = append(r.Issues, Issue{
		Severity:    tmpl.Severity,
		Code:        tmpl.Code,
		Diagnostics: formatTemplate(tmpl.Template, params),
		Expression:  expression,
		MessageID:   string(id),
	})
}

// AddWarningWithID adds a template issue downgraded to a warning.
func (r *Result) AddWarningWithID(id DiagnosticID, params map[string]any, expression ...string) {
	r.AddWithID(id, params, expression...)
	if last := &r.Issues[len(r.Issues)-1]; last.MessageID == string(id) {
		last.Severity = SeverityWarning
	}
}
