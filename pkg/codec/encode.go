package codec

import (
	"github.com/gofhir/hl7v2/pkg/delimiter"
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/model"
	"github.com/gofhir/hl7v2/pool"
)

// Encode writes msg as ER7 text with CR segment terminators. Empty trailing
// fields, repetitions, components and subcomponents are dropped, so encoding
// a decoded message again gives the same text.
func (p *PipeParser) Encode(msg *model.Message) (string, error) {
	d, err := Delimiters(msg)
	if err != nil {
		return "", err
	}
	b := pool.AcquireBuffer()
	defer b.Release()

	err = msg.Walk(func(s *model.Segment) error {
		encodeSegment(b, s, d)
		return b.WriteByte(delimiter.SegmentTerminator)
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// EncodeBytes encodes msg and converts the text to the charset in MSH-18.
func (p *PipeParser) EncodeBytes(msg *model.Message) ([]byte, error) {
	text, err := p.Encode(msg)
	if err != nil {
		return nil, err
	}
	hdr, _ := msg.Header()
	return encodeString(text, hdr.ComponentText(18, 1))
}

// Delimiters returns the delimiter set declared in the message header, or
// the default set when MSH-1 and MSH-2 are unset.
func Delimiters(msg *model.Message) (delimiter.Set, error) {
	hdr, ok := msg.Header()
	if !ok {
		return delimiter.Set{}, hl7err.Encoding("message %s has no MSH segment", msg.Structure())
	}
	field := hdr.ComponentText(1, 1)
	enc := hdr.ComponentText(2, 1)
	if field == "" {
		return delimiter.Default(), nil
	}
	d, err := delimiter.New(field[0], enc)
	if err != nil {
		return delimiter.Set{}, hl7err.At(
			hl7err.Wrap(hl7err.KindEncoding, err, "invalid encoding characters"),
			hl7err.Location{Version: msg.Version(), Segment: "MSH", Field: 2},
		)
	}
	return d, nil
}

func encodeSegment(b *pool.Buffer, s *model.Segment, d delimiter.Set) {
	b.WriteString(s.Name())
	start := b.Len()
	first := 1
	if isHeaderSegment(s.Name()) {
		_ = b.WriteByte(d.Field)
		b.WriteString(d.EncodingCharacters())
		start = b.Len()
		first = 3
	}
	for n := first; n <= s.NumFields(); n++ {
		_ = b.WriteByte(d.Field)
		encodeField(b, s.AllReps(n), d)
	}
	b.TrimRight(start, d.Field)
}

func encodeField(b *pool.Buffer, reps []model.Type, d delimiter.Set) {
	start := b.Len()
	for i, t := range reps {
		if i > 0 {
			_ = b.WriteByte(d.Repetition)
		}
		encodeType(b, t, d)
	}
	b.TrimRight(start, d.Repetition)
}

// encodeType writes t and its extra components, joined by the delimiter one
// level below t.
func encodeType(b *pool.Buffer, t model.Type, d delimiter.Set) {
	depth := model.Depth(t)
	sep := separatorBelow(depth, d)
	start := b.Len()

	width := 1
	switch n := model.Unwrap(t).(type) {
	case *model.Primitive:
		b.WriteString(d.EscapeText(n.String()))
	case *model.Composite:
		width = n.Len()
		for i, c := range n.Components() {
			if i > 0 {
				_ = b.WriteByte(sep)
			}
			encodeType(b, c, d)
		}
	}

	extra := t.Extra()
	for i := 0; i < extra.Len(); i++ {
		if width > 0 || i > 0 {
			_ = b.WriteByte(sep)
		}
		ev, _ := extra.Component(i)
		encodeType(b, ev, d)
	}
	if depth < 2 {
		b.TrimRight(start, sep)
	}
}
