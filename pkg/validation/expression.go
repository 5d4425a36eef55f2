package validation

import (
	"encoding/json"

	"github.com/gofhir/fhirpath"

	"github.com/gofhir/hl7v2/cache"
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/issue"
	"github.com/gofhir/hl7v2/pkg/model"
)

// compiled holds FHIRPath expressions shared by every ExpressionRule.
var compiled = cache.New[string, *fhirpath.Expression](512)

func compile(expr string) (*fhirpath.Expression, error) {
	return compiled.GetOrLoad(expr, func() (*fhirpath.Expression, error) {
		return fhirpath.Compile(expr)
	})
}

// ExpressionRule evaluates a FHIRPath expression against the JSON projection
// of a message (see model.Message.Projection). The rule fails when the
// expression yields false; an empty result passes.
//
//	segments.where(name = 'PV1').exists()
//	segments.where(name = 'PID').fields.where(position = 8).value = 'F'
type ExpressionRule struct {
	Expression string
	Desc       string
	// Segment, when set, is reported as the location of a failure.
	Segment string
}

// NewExpressionRule compiles expr so that syntax errors surface at
// registration rather than during validation.
func NewExpressionRule(expr, description string) (*ExpressionRule, error) {
	if _, err := compile(expr); err != nil {
		return nil, hl7err.Wrap(hl7err.KindPathSyntax, err, "invalid expression %q", expr)
	}
	return &ExpressionRule{Expression: expr, Desc: description}, nil
}

// Description implements MessageRule.
func (r *ExpressionRule) Description() string {
	if r.Desc != "" {
		return r.Desc
	}
	return r.Expression
}

// Test implements MessageRule.
func (r *ExpressionRule) Test(msg *model.Message) []*hl7err.Error {
	loc := hl7err.Location{Version: msg.Version(), Segment: r.Segment}

	expr, err := compile(r.Expression)
	if err != nil {
		return []*hl7err.Error{r.evalErr(err, loc)}
	}
	data, err := json.Marshal(msg.Projection())
	if err != nil {
		return []*hl7err.Error{r.evalErr(err, loc)}
	}
	result, err := expr.Evaluate(data)
	if err != nil {
		return []*hl7err.Error{r.evalErr(err, loc)}
	}
	if passed(result) {
		return nil
	}
	e := hl7err.Structural("%s", issue.FormatDiagnostic(issue.DiagExpressionFailed, map[string]any{
		"description": r.Description(),
		"expression":  r.Expression,
	}))
	e.Loc = loc
	return []*hl7err.Error{e}
}

func (r *ExpressionRule) evalErr(err error, loc hl7err.Location) *hl7err.Error {
	e := hl7err.Structural("%s", issue.FormatDiagnostic(issue.DiagExpressionError, map[string]any{
		"expression": r.Expression,
		"error":      err.Error(),
	}))
	e.Loc = loc
	return e
}

// passed treats an empty or non-boolean result as success.
func passed(result fhirpath.Collection) bool {
	if result.Empty() {
		return true
	}
	b, err := result.ToBoolean()
	if err != nil {
		return true
	}
	return b
}
