package codec

import (
	"github.com/gofhir/hl7v2/pkg/delimiter"
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/logger"
	"github.com/gofhir/hl7v2/pkg/model"
	"github.com/gofhir/hl7v2/pkg/navigator"
	"github.com/gofhir/hl7v2/pkg/schema"
	"github.com/gofhir/hl7v2/pool"
)

// PipeParser decodes and encodes ER7 text.
type PipeParser struct {
	provider schema.Provider
	opts     *Options
}

// NewPipeParser creates an ER7 codec backed by provider.
func NewPipeParser(provider schema.Provider, opts ...Option) *PipeParser {
	return &PipeParser{provider: provider, opts: NewOptions(opts...)}
}

// Encoding returns EncodingER7.
func (p *PipeParser) Encoding() string { return EncodingER7 }

// ParseBytes decodes raw bytes, converting them from the charset declared in
// MSH-18 first.
func (p *PipeParser) ParseBytes(b []byte) (*model.Message, error) {
	text, err := decodeBytes(b, p.opts.Strict)
	if err != nil {
		return nil, err
	}
	return p.Parse(text)
}

// Parse decodes an ER7 message.
func (p *PipeParser) Parse(text string) (*model.Message, error) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, hl7err.Encoding("empty message")
	}
	h, err := PreParse(lines[0])
	if err != nil {
		return nil, err
	}
	msg, err := NewMessage(p.provider, h, p.opts)
	if err != nil {
		return nil, err
	}

	d := h.Delimiters
	nav := navigator.New(msg, p.opts.Strict)
	for i, line := range lines {
		name := segmentName(line, d.Field)
		if !validSegmentName(name) {
			err := hl7err.Encoding("line %d: invalid segment name %q", i+1, name)
			if p.opts.Strict {
				return nil, hl7err.At(err, hl7err.Location{Version: msg.Version()})
			}
			msg.AddProblem(err)
			logger.Warn("skipping line %d: invalid segment name %q", i+1, name)
			continue
		}
		seg, err := nav.Next(name)
		if err != nil {
			return nil, err
		}
		if err := p.decodeSegment(seg, line, d); err != nil {
			return nil, hl7err.At(err, seg.Location())
		}
	}
	return msg, nil
}

func segmentName(line string, field byte) string {
	for i := 0; i < len(line); i++ {
		if line[i] == field {
			return line[:i]
		}
	}
	return line
}

func validSegmentName(name string) bool {
	if len(name) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		c := name[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func isHeaderSegment(name string) bool {
	return name == "MSH" || name == "FHS" || name == "BHS"
}

// decodeSegment fills seg from one ER7 line.
func (p *PipeParser) decodeSegment(seg *model.Segment, line string, d delimiter.Set) error {
	fields := pool.AcquireStringSlice()
	defer pool.ReleaseStringSlice(fields)
	pool.SplitInto(fields, line, d.Field)

	offset := 0
	start := 1
	if isHeaderSegment(seg.Name()) {
		// MSH-1 is the separator itself and MSH-2 is taken literally.
		if err := setRaw(seg, 1, string(d.Field)); err != nil {
			return err
		}
		if len(*fields) > 1 {
			if err := setRaw(seg, 2, (*fields)[1]); err != nil {
				return err
			}
		}
		offset, start = 1, 2
	}

	for i := start; i < len(*fields); i++ {
		if (*fields)[i] == "" {
			continue
		}
		if err := p.decodeField(seg, i+offset, (*fields)[i], d); err != nil {
			return err
		}
	}
	return nil
}

func setRaw(seg *model.Segment, n int, value string) error {
	t, err := seg.Field(n, 0)
	if err != nil {
		return err
	}
	if prim := model.FirstPrimitive(t); prim != nil {
		return prim.SetValue(value)
	}
	return nil
}

// decodeField splits one field into repetitions. Repetitions beyond the
// declared maximum are kept and recorded as problems unless decoding is
// strict.
func (p *PipeParser) decodeField(seg *model.Segment, n int, text string, d delimiter.Set) error {
	reps := pool.AcquireStringSlice()
	defer pool.ReleaseStringSlice(reps)
	pool.SplitInto(reps, text, d.Repetition)

	for r, rep := range *reps {
		t, err := seg.Field(n, r)
		if err != nil {
			if p.opts.Strict || r == 0 || r != seg.Reps(n) {
				return err
			}
			logger.Warn("%s: keeping repetition %d beyond the declared maximum", seg.Location().Path(), r+1)
			if t, err = seg.AppendRep(n); err != nil {
				return err
			}
		}
		if err := decodeType(t, rep, d); err != nil {
			return err
		}
	}
	return nil
}

// decodeType fills t from text, splitting on the delimiter one level below
// t. Text past the declared components lands in the extra components.
func decodeType(t model.Type, text string, d delimiter.Set) error {
	if text == "" {
		return nil
	}
	depth := model.Depth(t)
	if v, ok := t.(*model.Varies); ok {
		if p, ok := v.Data().(*model.Primitive); ok && p.IsGeneric() && hasStructure(text, depth, d) {
			return decodeType(v.Generalize(), text, d)
		}
		return decodeType(v.Data(), text, d)
	}

	parts := pool.AcquireStringSlice()
	defer pool.ReleaseStringSlice(parts)
	if depth < 2 {
		pool.SplitInto(parts, text, separatorBelow(depth, d))
	} else {
		*parts = append(*parts, text)
	}

	switch n := t.(type) {
	case *model.Primitive:
		if (*parts)[0] != "" {
			if err := n.SetValue(d.UnescapeText((*parts)[0])); err != nil {
				return err
			}
		}
		return decodeExtra(n.Extra(), (*parts)[1:], d)
	case *model.Composite:
		width := n.Len()
		if n.IsGeneric() {
			width = len(*parts)
		}
		for i, part := range *parts {
			if i >= width {
				return decodeExtra(n.Extra(), (*parts)[width:], d)
			}
			if part == "" {
				continue
			}
			c, err := n.Component(i)
			if err != nil {
				return err
			}
			if err := decodeType(c, part, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeExtra(e *model.ExtraComponents, parts []string, d delimiter.Set) error {
	for i, part := range parts {
		if part == "" {
			continue
		}
		if err := decodeType(e.Get(i), part, d); err != nil {
			return err
		}
	}
	return nil
}

// separatorBelow returns the delimiter that splits a value at depth.
func separatorBelow(depth int, d delimiter.Set) byte {
	if depth == 0 {
		return d.Component
	}
	return d.Subcomponent
}

// hasStructure reports whether text at depth holds components or
// subcomponents that a generic value must keep apart.
func hasStructure(text string, depth int, d delimiter.Set) bool {
	switch depth {
	case 0:
		return containsByte(text, d.Component) || containsByte(text, d.Subcomponent)
	case 1:
		return containsByte(text, d.Subcomponent)
	}
	return false
}

func containsByte(s string, c byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return true
		}
	}
	return false
}
