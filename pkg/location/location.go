// Package location finds the line and column of an HL7 location expression
// such as PID(0)-5(1)-2 in ER7 text.
package location

import (
	"strconv"
	"strings"

	"github.com/gofhir/hl7v2/pkg/delimiter"
)

// Location represents a position in the source text. Lines and columns are
// 1-based; the column counts bytes.
type Location struct {
	Line   int
	Column int
}

// target is a parsed location expression. The ordinal counts occurrences of
// the segment name in the text, starting at 0.
type target struct {
	segment      string
	ordinal      int
	field        int
	rep          int
	component    int
	subcomponent int
}

// Find locates expr in the ER7 text. The result points at the start of the
// deepest part of the expression present in the text, or the start of the
// segment when the field is missing. Returns nil if the segment cannot be
// found or expr cannot be parsed.
func Find(text, expr string) *Location {
	tg, ok := parseExpression(expr)
	if !ok || text == "" {
		return nil
	}

	delims := delimiter.Default()
	seen := 0
	for i, line := range splitLines(text) {
		body := strings.TrimLeft(line, " \t\x0b")
		offset := len(line) - len(body)
		if body == "" {
			continue
		}
		if isHeader(body) {
			if d, err := delimiter.FromMSH(body); err == nil {
				delims = d
			}
		}
		if segmentName(body, delims.Field) != tg.segment {
			continue
		}
		if seen < tg.ordinal {
			seen++
			continue
		}
		return &Location{Line: i + 1, Column: offset + column(body, delims, tg) + 1}
	}
	return nil
}

// parseExpression reads NAME(ordinal)-field(rep)-component-subcomponent.
// Everything after the segment name is optional.
func parseExpression(expr string) (target, bool) {
	var tg target
	parts := strings.Split(expr, "-")
	if len(parts) > 4 {
		return tg, false
	}
	name, ord, ok := splitIndex(parts[0])
	if !ok || name == "" {
		return tg, false
	}
	tg.segment, tg.ordinal = name, ord

	if len(parts) > 1 {
		f, rep, ok := splitIndex(parts[1])
		if !ok {
			return tg, false
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 {
			return tg, false
		}
		tg.field, tg.rep = n, rep
	}
	for i, dst := range []*int{&tg.component, &tg.subcomponent} {
		if len(parts) <= i+2 {
			break
		}
		n, err := strconv.Atoi(parts[i+2])
		if err != nil || n < 1 {
			return tg, false
		}
		*dst = n
	}
	return tg, true
}

// splitIndex splits "NAME(3)" into "NAME" and 3. A missing index is 0.
func splitIndex(s string) (string, int, bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return s, 0, true
	}
	if !strings.HasSuffix(s, ")") {
		return "", 0, false
	}
	n, err := strconv.Atoi(s[open+1 : len(s)-1])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return s[:open], n, true
}

// splitLines splits on CR, LF and CRLF.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n")
}

func isHeader(body string) bool {
	if len(body) < 4 {
		return false
	}
	switch body[:3] {
	case "MSH", "FHS", "BHS":
		return true
	}
	return false
}

func segmentName(body string, fs byte) string {
	if isHeader(body) {
		return body[:3]
	}
	if i := strings.IndexByte(body, fs); i >= 0 {
		return body[:i]
	}
	return body
}

// column returns the 0-based byte offset of tg inside the segment line.
func column(body string, d delimiter.Set, tg target) int {
	if tg.field == 0 {
		return 0
	}

	header := isHeader(body)
	pos, skip := 0, tg.field
	if header {
		if tg.field == 1 {
			return 3
		}
		pos, skip = 4, tg.field-2
	}
	for ; skip > 0; skip-- {
		j := strings.IndexByte(body[pos:], d.Field)
		if j < 0 {
			return 0
		}
		pos += j + 1
	}
	if header && tg.field == 2 {
		return pos
	}

	end := pos + fieldLen(body[pos:], d.Field)
	pos = advance(body, pos, end, d.Repetition, tg.rep)
	if tg.component == 0 {
		return pos
	}
	end = pos + fieldLen(body[pos:end], d.Repetition)
	pos = advance(body, pos, end, d.Component, tg.component-1)
	if tg.subcomponent == 0 {
		return pos
	}
	end = pos + fieldLen(body[pos:end], d.Component)
	return advance(body, pos, end, d.Subcomponent, tg.subcomponent-1)
}

// advance moves from pos past n separators within body[:end]. When fewer
// separators exist, pos is returned unchanged.
func advance(body string, pos, end int, sep byte, n int) int {
	p := pos
	for ; n > 0; n-- {
		j := strings.IndexByte(body[p:end], sep)
		if j < 0 {
			return pos
		}
		p += j + 1
	}
	return p
}

func fieldLen(s string, sep byte) int {
	if i := strings.IndexByte(s, sep); i >= 0 {
		return i
	}
	return len(s)
}
