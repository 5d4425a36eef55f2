package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofhir/hl7v2/pkg/codec"
	"github.com/gofhir/hl7v2/pkg/issue"
	"github.com/gofhir/hl7v2/pkg/model"
	"github.com/gofhir/hl7v2/stream"
)

// MessageOutput is the result for one message.
type MessageOutput struct {
	Source    string            `json:"source"`
	Line      int               `json:"line"`
	Structure string            `json:"structure,omitempty"`
	Version   string            `json:"version,omitempty"`
	ControlID string            `json:"controlId,omitempty"`
	Valid     bool              `json:"valid"`
	Errors    int               `json:"errors"`
	Warnings  int               `json:"warnings"`
	Info      int               `json:"info"`
	Issues    []IssueOutput     `json:"issues,omitempty"`
	Segments  []string          `json:"segments,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
	Encoded   string            `json:"encoded,omitempty"`
	Duration  string            `json:"duration"`
}

// IssueOutput represents a single issue in JSON output
type IssueOutput struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics"`
	Expression  []string `json:"expression,omitempty"`

	// Line and Column are relative to the message text.
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
}

func (p *processor) handle(m stream.Message) MessageOutput {
	start := time.Now()
	out := MessageOutput{}
	if h, err := codec.PreParse(m.Text); err == nil {
		out.ControlID = h.ControlID
	}

	msg, result, err := p.engine.ParseAndValidate(context.Background(), m.Text)
	if result == nil {
		result = issue.NewResult()
	}
	if err != nil && len(result.Issues) == 0 {
		result.AddErr(err, "engine")
	}
	if msg != nil {
		out.Structure = msg.Structure()
		out.Version = msg.Version()
	}

	if msg != nil {
		switch p.config.Mode {
		case ModeParse:
			out.Segments = segmentPaths(msg)
		case ModeXML, ModeER7:
			enc := codec.EncodingER7
			if p.config.Mode == ModeXML {
				enc = codec.EncodingXML
			}
			text, err := p.engine.EncodeAs(msg, enc)
			if err != nil {
				result.AddErr(err, "encoder")
			}
			out.Encoded = text
		case ModeGet:
			out.Values = p.values(msg, result)
		}
	}

	out.Valid = !result.HasErrors()
	out.Errors = result.ErrorCount()
	out.Warnings = result.WarningCount()
	out.Info = result.InfoCount()
	for _, is := range result.Issues {
		o := IssueOutput{
			Severity:    string(is.Severity),
			Code:        string(is.Code),
			Diagnostics: is.Diagnostics,
			Expression:  is.Expression,
		}
		if is.Location != nil {
			o.Line = is.Location.Line
			o.Column = is.Location.Column
		}
		out.Issues = append(out.Issues, o)
	}
	out.Duration = time.Since(start).Round(time.Microsecond).String()
	return out
}

func (p *processor) values(msg *model.Message, result *issue.Result) map[string]string {
	t := p.engine.Terser(msg)
	values := make(map[string]string, len(p.config.Paths))
	for _, path := range p.config.Paths {
		v, ok, err := t.Get(path)
		switch {
		case err != nil:
			result.AddErr(err, "terser")
		case ok:
			values[path] = v
		}
	}
	return values
}

func segmentPaths(msg *model.Message) []string {
	var paths []string
	_ = msg.Walk(func(s *model.Segment) error {
		paths = append(paths, s.Path())
		return nil
	})
	return paths
}

func printText(w io.Writer, out MessageOutput, config *Config) {
	switch config.Mode {
	case ModeXML, ModeER7:
		if out.Encoded != "" {
			text := out.Encoded
			if config.Mode == ModeER7 {
				text = strings.ReplaceAll(strings.TrimRight(text, "\r"), "\r", "\n")
			}
			fmt.Fprintln(w, text)
		}
		printIssues(w, out, config, false)
		return
	case ModeGet:
		for _, path := range config.Paths {
			fmt.Fprintf(w, "%s=%s\n", path, out.Values[path])
		}
		printIssues(w, out, config, false)
		return
	}

	status := "VALID"
	if !out.Valid {
		status = "INVALID"
	}
	fmt.Fprintf(w, "== %s (line %d) ==\n", out.Source, out.Line)
	if out.Structure != "" {
		fmt.Fprintf(w, "Message: %s v%s, control ID %s\n", out.Structure, out.Version, out.ControlID)
	}
	fmt.Fprintf(w, "Status: %s\n", status)
	fmt.Fprintf(w, "Errors: %d, Warnings: %d, Info: %d\n", out.Errors, out.Warnings, out.Info)
	fmt.Fprintf(w, "Duration: %s\n", out.Duration)

	if config.Mode == ModeParse && len(out.Segments) > 0 {
		fmt.Fprintln(w, "\nSegments:")
		for _, s := range out.Segments {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}
	printIssues(w, out, config, true)
	fmt.Fprintln(w)
}

func printIssues(w io.Writer, out MessageOutput, config *Config, header bool) {
	if len(out.Issues) == 0 {
		return
	}
	if header {
		fmt.Fprintln(w, "\nIssues:")
	}
	for _, is := range out.Issues {
		if config.Quiet && is.Severity == string(issue.SeverityInformation) {
			continue
		}
		location := ""
		if len(is.Expression) > 0 {
			location = fmt.Sprintf(" @ %s", strings.Join(is.Expression, ", "))
		}
		if is.Line > 0 {
			location += fmt.Sprintf(" (%d:%d)", is.Line, is.Column)
		}
		fmt.Fprintf(w, "  %s [%s] %s%s\n", severityLabel(issue.Severity(is.Severity)), is.Code, is.Diagnostics, location)
	}
}

func severityLabel(severity issue.Severity) string {
	switch severity {
	case issue.SeverityFatal:
		return "FATAL"
	case issue.SeverityError:
		return "ERROR"
	case issue.SeverityWarning:
		return "WARN "
	case issue.SeverityInformation:
		return "INFO "
	default:
		return "     "
	}
}

// peekReader lets the encoding be detected from the start of the input
// without consuming it.
type peekReader struct {
	*bufio.Reader
}

func newPeekReader(r io.Reader) peekReader {
	return peekReader{bufio.NewReaderSize(r, 4096)}
}

func (p peekReader) head() string {
	b, _ := p.Peek(256)
	return string(b)
}
