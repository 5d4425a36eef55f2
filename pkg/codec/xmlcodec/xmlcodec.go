// Package xmlcodec implements the HL7 v2.xml encoding.
//
// The document element is named after the message structure. Groups appear
// as STRUCTURE.GROUP elements, segments under their own names, fields as
// SEG.n and components as TYPE.n. Groups are only containers on input:
// segments are placed with the same navigator the ER7 decoder uses.
package xmlcodec

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/gofhir/hl7v2/pkg/codec"
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/model"
	"github.com/gofhir/hl7v2/pkg/navigator"
	"github.com/gofhir/hl7v2/pkg/schema"
)

// Namespace is the HL7 v2.xml namespace written on the document element.
const Namespace = "urn:hl7-org:v2xml"

// XMLParser decodes and encodes HL7 v2.xml.
type XMLParser struct {
	provider schema.Provider
	opts     *codec.Options
}

// NewXMLParser creates an XML codec backed by provider.
func NewXMLParser(provider schema.Provider, opts ...codec.Option) *XMLParser {
	return &XMLParser{provider: provider, opts: codec.NewOptions(opts...)}
}

// Encoding returns codec.EncodingXML.
func (p *XMLParser) Encoding() string { return codec.EncodingXML }

// node is one element of the parsed document.
type node struct {
	name     string
	text     strings.Builder
	children []*node
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// value returns the text of a leaf, or the text of its first component.
func (n *node) value() string {
	if n == nil {
		return ""
	}
	if len(n.children) == 0 {
		return n.text.String()
	}
	return n.children[0].value()
}

// component returns the text of the component whose name ends in .i.
func (n *node) component(i int) string {
	if n == nil {
		return ""
	}
	if len(n.children) == 0 {
		if i == 1 {
			return n.text.String()
		}
		return ""
	}
	for _, c := range n.children {
		if k, ok := suffix(c.name); ok && k == i {
			return c.value()
		}
	}
	return ""
}

// parseTree reads the whole document into a node tree.
func parseTree(text string) (*node, error) {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, err
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var root *node
	var stack []*node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, hl7err.Wrap(hl7err.KindEncoding, err, "malformed XML")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local}
			switch {
			case len(stack) > 0:
				top := stack[len(stack)-1]
				top.children = append(top.children, n)
			case root != nil:
				return nil, hl7err.Encoding("more than one document element")
			default:
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, hl7err.Encoding("document has no element")
	}
	return root, nil
}

// header reads the MSH fields the structure choice depends on.
func header(root *node) (codec.Header, error) {
	msh := findSegment(root, "MSH")
	if msh == nil {
		return codec.Header{}, hl7err.Encoding("document has no MSH segment")
	}
	h := codec.Header{
		MessageType:  msh.child("MSH.9").component(1),
		TriggerEvent: msh.child("MSH.9").component(2),
		Structure:    msh.child("MSH.9").component(3),
		ControlID:    msh.child("MSH.10").value(),
		Version:      msh.child("MSH.12").value(),
		Charset:      msh.child("MSH.18").value(),
	}
	if h.Structure == "" && !strings.Contains(root.name, ".") && root.name != model.GenericStructure {
		h.Structure = root.name
	}
	return h, nil
}

func findSegment(n *node, name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
		if strings.Contains(c.name, ".") {
			if found := findSegment(c, name); found != nil {
				return found
			}
		}
	}
	return nil
}

// suffix returns the number after the last dot of an element name.
func suffix(name string) (int, bool) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Parse decodes an HL7 v2.xml document.
func (p *XMLParser) Parse(text string) (*model.Message, error) {
	root, err := parseTree(text)
	if err != nil {
		return nil, err
	}
	h, err := header(root)
	if err != nil {
		return nil, err
	}
	if h.Structure != "" {
		if _, err := p.provider.ResolveStructure(versionOr(h.Version, p.opts.DefaultVersion), h.Structure); err != nil {
			h.Structure = ""
		}
	}
	msg, err := codec.NewMessage(p.provider, h, p.opts)
	if err != nil {
		return nil, err
	}

	nav := navigator.New(msg, p.opts.Strict)
	if err := p.decodeChildren(nav, root); err != nil {
		return nil, err
	}
	return msg, nil
}

func versionOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// decodeChildren places the segments below n in document order. Group
// elements are flattened.
func (p *XMLParser) decodeChildren(nav *navigator.Navigator, n *node) error {
	for _, c := range n.children {
		if strings.Contains(c.name, ".") {
			if err := p.decodeChildren(nav, c); err != nil {
				return err
			}
			continue
		}
		seg, err := nav.Next(c.name)
		if err != nil {
			return err
		}
		if err := p.decodeSegment(seg, c); err != nil {
			return hl7err.At(err, seg.Location())
		}
	}
	return nil
}

func (p *XMLParser) decodeSegment(seg *model.Segment, n *node) error {
	reps := map[int]int{}
	for _, c := range n.children {
		if !strings.HasPrefix(c.name, seg.Name()+".") {
			continue
		}
		field, ok := suffix(c.name)
		if !ok {
			continue
		}
		r := reps[field]
		reps[field]++
		t, err := seg.Field(field, r)
		if err != nil {
			if p.opts.Strict || r == 0 || r != seg.Reps(field) {
				return err
			}
			if t, err = seg.AppendRep(field); err != nil {
				return err
			}
		}
		if err := decodeType(t, c); err != nil {
			return err
		}
	}
	return nil
}

func decodeType(t model.Type, n *node) error {
	if v, ok := t.(*model.Varies); ok {
		if prim, ok := v.Data().(*model.Primitive); ok && prim.IsGeneric() && len(n.children) > 0 && model.Depth(t) < 2 {
			return decodeType(v.Generalize(), n)
		}
		return decodeType(v.Data(), n)
	}

	switch x := t.(type) {
	case *model.Primitive:
		if len(n.children) == 0 {
			if s := n.text.String(); s != "" {
				return x.SetValue(s)
			}
			return nil
		}
		for _, c := range n.children {
			k, ok := suffix(c.name)
			if !ok {
				continue
			}
			if k == 1 {
				if s := c.value(); s != "" {
					if err := x.SetValue(s); err != nil {
						return err
					}
				}
				continue
			}
			if err := decodeType(x.Extra().Get(k-2), c); err != nil {
				return err
			}
		}
	case *model.Composite:
		if len(n.children) == 0 {
			if s := n.text.String(); s != "" {
				first, err := x.Component(0)
				if err != nil {
					return err
				}
				if prim := model.FirstPrimitive(first); prim != nil {
					return prim.SetValue(s)
				}
			}
			return nil
		}
		for _, c := range n.children {
			k, ok := suffix(c.name)
			if !ok {
				continue
			}
			var target model.Type
			if x.IsGeneric() || k <= x.Len() {
				comp, err := x.Component(k - 1)
				if err != nil {
					return err
				}
				target = comp
			} else {
				target = x.Extra().Get(k - 1 - x.Len())
			}
			if err := decodeType(target, c); err != nil {
				return err
			}
		}
	}
	return nil
}
