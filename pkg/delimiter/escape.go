package delimiter

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// EscapeText replaces every reserved delimiter in text with its escape
// sequence. Control characters and bytes that are not valid UTF-8 are written
// as \Xhh\. Formatting sequences (\H\, \N\, \.br\ ...) already present in
// text are kept.
func (s Set) EscapeText(text string) string {
	if !s.needsEscape(text) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case s.Escape:
			if end := s.formattingEnd(text, i); end > 0 {
				b.WriteString(text[i : end+1])
				i = end
				continue
			}
			s.writeSeq(&b, "E")
		case s.Field:
			s.writeSeq(&b, "F")
		case s.Component:
			s.writeSeq(&b, "S")
		case s.Subcomponent:
			s.writeSeq(&b, "T")
		case s.Repetition:
			s.writeSeq(&b, "R")
		default:
			if c >= utf8.RuneSelf {
				r, size := utf8.DecodeRuneInString(text[i:])
				if r == utf8.RuneError && size == 1 {
					s.writeHex(&b, c)
					continue
				}
				b.WriteString(text[i : i+size])
				i += size - 1
				continue
			}
			if isControl(c) {
				s.writeHex(&b, c)
				continue
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// UnescapeText decodes delimiter and hex escape sequences. Formatting and
// unrecognised sequences are returned verbatim.
func (s Set) UnescapeText(text string) string {
	if strings.IndexByte(text, s.Escape) < 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != s.Escape {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(text[i+1:], s.Escape)
		if end < 0 {
			b.WriteString(text[i:])
			break
		}
		end += i + 1
		seq := text[i+1 : end]
		if decoded, ok := s.decodeSeq(seq); ok {
			b.WriteString(decoded)
		} else {
			b.WriteString(text[i : end+1])
		}
		i = end
	}
	return b.String()
}

func (s Set) decodeSeq(seq string) (string, bool) {
	switch seq {
	case "F":
		return string(s.Field), true
	case "S":
		return string(s.Component), true
	case "T":
		return string(s.Subcomponent), true
	case "R":
		return string(s.Repetition), true
	case "E":
		return string(s.Escape), true
	}
	if len(seq) > 1 && seq[0] == 'X' && len(seq)%2 == 1 {
		raw, err := hex.DecodeString(seq[1:])
		if err == nil {
			return string(raw), true
		}
	}
	return "", false
}

// formattingEnd returns the index of the closing escape character when a
// formatting sequence starts at i, or -1.
func (s Set) formattingEnd(text string, i int) int {
	end := strings.IndexByte(text[i+1:], s.Escape)
	if end <= 0 {
		return -1
	}
	end += i + 1
	if isFormatting(text[i+1 : end]) {
		return end
	}
	return -1
}

func isFormatting(seq string) bool {
	switch seq {
	case "H", "N":
		return true
	}
	switch seq[0] {
	case '.', 'C', 'M', 'Z':
		if len(seq) < 2 {
			return false
		}
		for i := 1; i < len(seq); i++ {
			c := seq[i]
			if !isAlnum(c) && c != '+' && c != '-' {
				return false
			}
		}
		return true
	}
	return false
}

func (s Set) needsEscape(text string) bool {
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case s.Escape, s.Field, s.Component, s.Subcomponent, s.Repetition:
			return true
		default:
			if isControl(c) {
				return true
			}
		}
	}
	return !utf8.ValidString(text)
}

// isControl reports ASCII control characters other than tab.
func isControl(c byte) bool {
	return (c < 0x20 && c != '\t') || c == 0x7f
}

func (s Set) writeHex(b *strings.Builder, c byte) {
	s.writeSeq(b, "X"+strings.ToUpper(hex.EncodeToString([]byte{c})))
}

func (s Set) writeSeq(b *strings.Builder, code string) {
	b.WriteByte(s.Escape)
	b.WriteString(code)
	b.WriteByte(s.Escape)
}
