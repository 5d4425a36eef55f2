package validation

import (
	"time"

	"github.com/gofhir/hl7v2/pkg/codec"
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/issue"
	"github.com/gofhir/hl7v2/pkg/location"
	"github.com/gofhir/hl7v2/pkg/logger"
	"github.com/gofhir/hl7v2/pkg/model"
)

// Validator applies the message and encoding rules of a Context.
type Validator struct {
	ctx      *Context
	failFast bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithFailFast makes the validator stop at the first error-level failure and
// return it as an error, together with the issues collected so far.
func WithFailFast(enabled bool) Option {
	return func(v *Validator) {
		v.failFast = enabled
	}
}

// NewValidator creates a validator over ctx. A nil ctx uses DefaultContext.
func NewValidator(ctx *Context, opts ...Option) *Validator {
	if ctx == nil {
		ctx = DefaultContext()
	}
	v := &Validator{ctx: ctx}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Context returns the rule context.
func (v *Validator) Context() *Context { return v.ctx }

// ValidateMessage checks a parsed message. The result lists, in order: the
// problems recorded while the message was built, segments the structure does
// not declare, and the failures of every message rule bound to the message's
// version, type and event.
func (v *Validator) ValidateMessage(msg *model.Message) (*issue.Result, error) {
	start := time.Now()
	result := issue.NewResult()
	result.Stats = &issue.Stats{Structure: msg.Structure(), Version: msg.Version()}
	defer func() {
		result.Stats.Duration = time.Since(start).Nanoseconds()
		logger.Debug("Validated %s (v%s) in %.3fms: %d errors, %d warnings",
			msg.Structure(), msg.Version(), result.Stats.DurationMs(), result.ErrorCount(), result.WarningCount())
	}()

	for _, p := range msg.Problems() {
		if hl7err.KindOf(p) == hl7err.KindDataType {
			if err := v.report(result, p, "parser"); err != nil {
				return result, err
			}
			continue
		}
		result.AddWarningWithID(issue.DiagStructureProblem, map[string]any{"details": message(p)}, expressions(p)...)
	}

	segments := msg.Segments()
	result.Stats.SegmentsChecked = len(segments)
	if msg.IsGeneric() {
		result.AddInfo(issue.CodeNotSupported, "Message structure is unknown; only generic checks apply")
	} else {
		ordinals := segmentOrdinals(msg)
		for _, s := range segments {
			if s.Parent().IsNonstandard(s.Key()) {
				parent := s.Parent().Name()
				loc := hl7err.Location{Segment: s.Name(), SegmentRep: ordinals[s]}
				result.AddWithID(issue.DiagStructureNonstandard, map[string]any{"name": s.Name(), "parent": parent}, loc.Path())
			}
		}
	}

	var msgType, event string
	if msh, ok := msg.Header(); ok {
		msgType, event = msh.ComponentText(9, 1), msh.ComponentText(9, 2)
	}
	for _, rule := range v.ctx.MessageRules(msg.Version(), msgType, event) {
		result.Stats.RulesRun++
		for _, e := range rule.Test(msg) {
			if err := v.report(result, e, rule.Description()); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// ValidateEncoded applies the encoding rules to raw text. An empty encoding
// is detected from the text; an empty version is read from the ER7 header.
// Issues on ER7 text carry their line and column.
func (v *Validator) ValidateEncoded(text, encoding, version string) (*issue.Result, error) {
	start := time.Now()
	if encoding == "" {
		encoding = codec.DetectEncoding(text)
	}
	if version == "" && encoding == codec.EncodingER7 {
		if h, err := codec.PreParse(text); err == nil {
			version = h.Version
		}
	}

	result := issue.NewResult()
	result.Stats = &issue.Stats{Version: version, Size: len(text)}
	defer func() {
		result.Stats.Duration = time.Since(start).Nanoseconds()
	}()

	if encoding == "" {
		result.AddWithID(issue.DiagEncodingUnreadable, map[string]any{"error": "neither ER7 nor XML"})
		if v.failFast {
			return result, hl7err.Encoding("message is neither ER7 nor XML")
		}
		return result, nil
	}
	for _, rule := range v.ctx.EncodingRules(version, encoding) {
		result.Stats.RulesRun++
		for _, e := range rule.Test(text) {
			if err := v.report(result, e, rule.Description()); err != nil {
				Locate(result, text)
				return result, err
			}
		}
	}
	Locate(result, text)
	return result, nil
}

// report adds a rule failure. Lookup failures mean a value could not be
// checked and are informational; everything else is an error.
func (v *Validator) report(result *issue.Result, e *hl7err.Error, source string) error {
	result.AddErr(e, source)
	if hl7err.KindOf(e) == hl7err.KindLookup {
		result.Issues[len(result.Issues)-1].Severity = issue.SeverityInformation
		return nil
	}
	if v.failFast {
		return e
	}
	return nil
}

// Locate fills in the line and column of the issues of result from ER7 text.
// Results for other encodings are left alone.
func Locate(result *issue.Result, text string) {
	if codec.DetectEncoding(text) != codec.EncodingER7 {
		return
	}
	result.EnrichLocations(func(expr string) *issue.Location {
		loc := location.Find(text, expr)
		if loc == nil {
			return nil
		}
		return &issue.Location{Line: loc.Line, Column: loc.Column}
	})
}

func message(e *hl7err.Error) string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func expressions(e *hl7err.Error) []string {
	if p := e.Loc.Path(); p != "" {
		return []string{p}
	}
	return nil
}
