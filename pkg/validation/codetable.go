package validation

import (
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/issue"
	"github.com/gofhir/hl7v2/pkg/model"
	"github.com/gofhir/hl7v2/terminology"
)

// CodeTableRule checks coded values against the HL7 tables named by field
// and component definitions. A table the lookup cannot answer for is
// reported once, as a lookup error, and its values are not checked.
type CodeTableRule struct {
	Tables terminology.Lookup
}

// NewCodeTableRule creates a rule backed by tables.
func NewCodeTableRule(tables terminology.Lookup) *CodeTableRule {
	return &CodeTableRule{Tables: tables}
}

// Description implements MessageRule.
func (r *CodeTableRule) Description() string {
	return "coded values are defined in their HL7 table"
}

// Test implements MessageRule.
func (r *CodeTableRule) Test(msg *model.Message) []*hl7err.Error {
	c := &tableCheck{tables: r.Tables, unavailable: make(map[string]bool)}
	ordinals := segmentOrdinals(msg)
	for _, s := range msg.Segments() {
		if s.IsGeneric() {
			continue
		}
		for n, fd := range s.Def().Fields {
			for rep, t := range s.AllReps(n + 1) {
				loc := hl7err.Location{
					Version:    msg.Version(),
					Segment:    s.Name(),
					SegmentRep: ordinals[s],
					Field:      n + 1,
					FieldRep:   rep,
				}
				if fd.Table != "" {
					c.check(fd.Table, model.Text(t), loc)
				}
				comp, ok := model.Unwrap(t).(*model.Composite)
				if !ok || comp.Def() == nil {
					continue
				}
				parts := comp.Components()
				for i, cd := range comp.Def().Components {
					// the field table already covers the first component
					if cd.Table == "" || i >= len(parts) || (i == 0 && fd.Table != "") {
						continue
					}
					at := loc
					at.Component = i + 1
					c.check(cd.Table, model.Text(parts[i]), at)
				}
			}
		}
	}
	return c.errs
}

type tableCheck struct {
	tables      terminology.Lookup
	unavailable map[string]bool
	errs        []*hl7err.Error
}

func (c *tableCheck) check(table, value string, loc hl7err.Location) {
	if IsNull(value) || c.unavailable[table] {
		return
	}
	ok, err := c.tables.Contains(table, value)
	if err != nil {
		c.unavailable[table] = true
		e := hl7err.Lookup("%s", issue.FormatDiagnostic(issue.DiagTableUnavailable, map[string]any{
			"table": table,
			"error": err.Error(),
		}))
		e.Loc = loc
		c.errs = append(c.errs, e)
		return
	}
	if !ok {
		e := hl7err.DataType("%s", issue.FormatDiagnostic(issue.DiagCodeNotInTable, map[string]any{
			"value": value,
			"table": table,
		}))
		e.Loc = loc
		c.errs = append(c.errs, e)
	}
}
