package validation

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/issue"
)

// SegmentLineRule checks that every line of ER7 text starts with a segment
// ID (three upper case letters or digits, the first a letter) followed by
// the field separator or the end of the line.
type SegmentLineRule struct{}

// Description implements EncodingRule.
func (SegmentLineRule) Description() string {
	return "every line is a segment"
}

// Test implements EncodingRule.
func (SegmentLineRule) Test(text string) []*hl7err.Error {
	text = strings.TrimRight(strings.TrimLeft(text, "\x0b"), "\x1c\r\n")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	fs := byte('|')
	var errs []*hl7err.Error
	for i, raw := range strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n") {
		line := strings.TrimLeft(raw, " \t\x0b")
		if line == "" {
			continue
		}
		if isHeaderLine(line) && len(line) > 3 {
			fs = line[3]
		}
		if !isSegmentLine(line, fs) {
			e := hl7err.Encoding("%s", issue.FormatDiagnostic(issue.DiagEncodingSegmentLine, map[string]any{
				"line": i + 1,
				"text": truncate(line, 20),
			}))
			errs = append(errs, e)
		}
	}
	return errs
}

func isHeaderLine(line string) bool {
	return strings.HasPrefix(line, "MSH") || strings.HasPrefix(line, "FHS") || strings.HasPrefix(line, "BHS")
}

func isSegmentLine(line string, fs byte) bool {
	if len(line) < 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		c := line[i]
		letter := c >= 'A' && c <= 'Z'
		digit := c >= '0' && c <= '9'
		if !letter && !(digit && i > 0) {
			return false
		}
	}
	if len(line) == 3 {
		return true
	}
	return line[3] == fs
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// XMLWellFormedRule checks that XML text parses as a single well-formed
// document.
type XMLWellFormedRule struct{}

// Description implements EncodingRule.
func (XMLWellFormedRule) Description() string {
	return "text is well-formed XML"
}

// Test implements EncodingRule.
func (XMLWellFormedRule) Test(text string) []*hl7err.Error {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.Strict = true
	roots := 0
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return []*hl7err.Error{xmlErr(err.Error())}
		}
		switch tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	switch {
	case roots == 0:
		return []*hl7err.Error{xmlErr("no root element")}
	case roots > 1:
		return []*hl7err.Error{xmlErr("more than one root element")}
	}
	return nil
}

func xmlErr(detail string) *hl7err.Error {
	return hl7err.Encoding("%s", issue.FormatDiagnostic(issue.DiagEncodingXML, map[string]any{"error": detail}))
}
