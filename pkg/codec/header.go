package codec

import (
	"strings"

	"github.com/gofhir/hl7v2/pkg/delimiter"
	"github.com/gofhir/hl7v2/pkg/hl7err"
)

// Header is what a decoder needs to know before it builds the message tree.
type Header struct {
	Delimiters   delimiter.Set
	MessageType  string // MSH-9-1
	TriggerEvent string // MSH-9-2
	Structure    string // MSH-9-3
	ControlID    string // MSH-10
	Version      string // MSH-12-1
	Charset      string // MSH-18, first repetition
}

// Type returns the message type and event, e.g. ADT^A01.
func (h Header) Type() string {
	if h.TriggerEvent == "" {
		return h.MessageType
	}
	return h.MessageType + "^" + h.TriggerEvent
}

// PreParse reads the header fields of an ER7 message with a plain split, so
// the right structure and charset are known before full decoding.
func PreParse(text string) (Header, error) {
	line := firstLine(text)
	if !strings.HasPrefix(line, "MSH") {
		return Header{}, hl7err.Encoding("message does not start with MSH")
	}
	d, err := delimiter.FromMSH(line)
	if err != nil {
		return Header{}, hl7err.Wrap(hl7err.KindEncoding, err, "invalid MSH delimiters")
	}

	// fields[k] holds MSH-(k+1): MSH-1 is the separator itself.
	fields := strings.Split(line, string(d.Field))
	field := func(n int) string {
		if n-1 < len(fields) {
			return fields[n-1]
		}
		return ""
	}
	first := func(s string, sep byte) string {
		if i := strings.IndexByte(s, sep); i >= 0 {
			return s[:i]
		}
		return s
	}
	component := func(s string, i int) string {
		s = first(s, d.Repetition)
		parts := strings.Split(s, string(d.Component))
		if i < len(parts) {
			return d.UnescapeText(first(parts[i], d.Subcomponent))
		}
		return ""
	}

	msgType := field(9)
	return Header{
		Delimiters:   d,
		MessageType:  component(msgType, 0),
		TriggerEvent: component(msgType, 1),
		Structure:    component(msgType, 2),
		ControlID:    component(field(10), 0),
		Version:      component(field(12), 0),
		Charset:      component(field(18), 0),
	}, nil
}

// firstLine returns the first non-blank line of text without framing bytes
// or leading whitespace.
func firstLine(text string) string {
	for len(text) > 0 {
		end := strings.IndexAny(text, "\r\n")
		line := text
		if end >= 0 {
			line, text = text[:end], text[end+1:]
		} else {
			text = ""
		}
		if line = cleanLine(line); line != "" {
			return line
		}
	}
	return ""
}

// cleanLine strips MLLP framing bytes, a byte order mark and leading
// whitespace from one segment line.
func cleanLine(line string) string {
	line = strings.TrimLeft(line, " \t\ufeff\x0b")
	return strings.TrimRight(line, "\x1c")
}

// splitLines splits ER7 text into segment lines. CR, LF and CRLF all end a
// segment; blank lines are skipped.
func splitLines(text string) []string {
	var lines []string
	for len(text) > 0 {
		end := strings.IndexAny(text, "\r\n")
		line := text
		if end >= 0 {
			line, text = text[:end], text[end+1:]
		} else {
			text = ""
		}
		if line = cleanLine(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
