package codec

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/gofhir/hl7v2/pkg/hl7err"
)

// charsets maps HL7 table 0211 values to text encodings. A nil encoding
// means the bytes are already UTF-8 compatible.
var charsets = map[string]encoding.Encoding{
	"":               nil,
	"ASCII":          nil,
	"UNICODE UTF-8":  nil,
	"UTF-8":          nil,
	"8859/1":         charmap.ISO8859_1,
	"8859/2":         charmap.ISO8859_2,
	"8859/3":         charmap.ISO8859_3,
	"8859/4":         charmap.ISO8859_4,
	"8859/5":         charmap.ISO8859_5,
	"8859/6":         charmap.ISO8859_6,
	"8859/7":         charmap.ISO8859_7,
	"8859/8":         charmap.ISO8859_8,
	"8859/9":         charmap.ISO8859_9,
	"8859/15":        charmap.ISO8859_15,
	"UNICODE":        unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
	"UNICODE UTF-16": unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
}

// Charset returns the text encoding for an MSH-18 value. Names are matched
// case-insensitively; the nil encoding stands for ASCII and UTF-8.
func Charset(name string) (encoding.Encoding, error) {
	enc, ok := charsets[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, hl7err.Encoding("unsupported character set %q", name)
	}
	return enc, nil
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// decodeBytes converts raw message bytes to a UTF-8 string. A byte order
// mark wins over MSH-18; otherwise the header is read from the raw bytes,
// which every supported single-byte charset keeps ASCII compatible.
func decodeBytes(b []byte, strict bool) (string, error) {
	switch {
	case bytes.HasPrefix(b, bomUTF8):
		return string(b[len(bomUTF8):]), nil
	case bytes.HasPrefix(b, bomUTF16BE), bytes.HasPrefix(b, bomUTF16LE):
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err != nil {
			return "", hl7err.Wrap(hl7err.KindEncoding, err, "invalid UTF-16 input")
		}
		return string(out), nil
	}

	h, err := PreParse(string(b))
	if err != nil {
		return "", err
	}
	enc, err := Charset(h.Charset)
	if err != nil {
		if strict {
			return "", err
		}
		return string(b), nil
	}
	if enc == nil {
		return string(b), nil
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", hl7err.Wrap(hl7err.KindEncoding, err, "cannot decode %s input", h.Charset)
	}
	return string(out), nil
}

// encodeString converts text to the charset named by MSH-18.
func encodeString(text, charset string) ([]byte, error) {
	enc, err := Charset(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return []byte(text), nil
	}
	out, err := enc.NewEncoder().String(text)
	if err != nil {
		return nil, hl7err.Wrap(hl7err.KindEncoding, err, "cannot encode message as %s", charset)
	}
	return []byte(out), nil
}
