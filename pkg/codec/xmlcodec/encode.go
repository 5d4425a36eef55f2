package xmlcodec

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/model"
)

// Encode writes msg as an indented HL7 v2.xml document.
func (p *XMLParser) Encode(msg *model.Message) (string, error) {
	if _, ok := msg.Header(); !ok {
		return "", hl7err.Encoding("message %s has no MSH segment", msg.Structure())
	}

	var b strings.Builder
	b.WriteString(xml.Header)
	enc := xml.NewEncoder(&b)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: msg.Structure()},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: Namespace}},
	}
	w := &writer{enc: enc, structure: msg.Structure()}
	w.token(root)
	w.group(msg.Group)
	w.token(root.End())
	if w.err == nil {
		w.err = enc.Flush()
	}
	if w.err != nil {
		return "", hl7err.Wrap(hl7err.KindEncoding, w.err, "cannot write XML")
	}
	b.WriteByte('\n')
	return b.String(), nil
}

// writer keeps the first encoder error so the tree walk stays linear.
type writer struct {
	enc       *xml.Encoder
	structure string
	err       error
}

func (w *writer) token(t xml.Token) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(t)
	}
}

func (w *writer) group(g *model.Group) {
	for _, decl := range g.Children() {
		for _, s := range g.GetAll(decl.Name) {
			switch n := s.(type) {
			case *model.Segment:
				w.segment(n)
			case *model.Group:
				start := element(w.structure + "." + n.Name())
				w.token(start)
				w.group(n)
				w.token(start.End())
			}
		}
	}
}

func (w *writer) segment(s *model.Segment) {
	start := element(s.Name())
	w.token(start)
	for n := 1; n <= s.NumFields(); n++ {
		reps := s.AllReps(n)
		last := len(reps) - 1
		for last >= 0 && reps[last].IsEmpty() {
			last--
		}
		name := s.Name() + "." + strconv.Itoa(n)
		for _, t := range reps[:last+1] {
			w.value(name, t)
		}
	}
	w.token(start.End())
}

// value writes t as element name. Components are named after the type of t
// and empty ones are left out; their position is carried by the name.
func (w *writer) value(name string, t model.Type) {
	start := element(name)
	w.token(start)

	inner := model.Unwrap(t)
	prefix := inner.TypeName() + "."
	width := 1
	switch x := inner.(type) {
	case *model.Primitive:
		if x.Extra().Len() == 0 {
			w.token(xml.CharData(x.String()))
			break
		}
		if !x.IsEmpty() {
			w.token(element(prefix + "1"))
			w.token(xml.CharData(x.String()))
			w.token(element(prefix + "1").End())
		}
	case *model.Composite:
		width = x.Len()
		for i, c := range x.Components() {
			if !c.IsEmpty() {
				w.value(prefix+strconv.Itoa(i+1), c)
			}
		}
	}

	extra := t.Extra()
	for i := 0; i < extra.Len(); i++ {
		ev, _ := extra.Component(i)
		if !ev.IsEmpty() {
			w.value(prefix+strconv.Itoa(width+i+1), ev)
		}
	}
	w.token(start.End())
}

func element(name string) xml.StartElement {
	return xml.StartElement{Name: xml.Name{Local: name}}
}
