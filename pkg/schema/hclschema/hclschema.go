// Package hclschema loads HL7v2 structure catalogs written in HCL.
//
// A catalog file lists the versions it applies to and declares primitive
// types, composites, segments and messages:
//
//	versions   = ["2.4", "2.5"]
//	primitives = ["ST", "ID", "NM"]
//
//	composite "HD" {
//	  component "NamespaceID" { type = "IS" }
//	}
//
//	segment "PID" {
//	  field "SetID" { type = "SI" max_length = 4 }
//	  field "PatientIdentifierList" { type = "CX" min = 1 max = unbounded }
//	}
//
//	message "ADT_A01" {
//	  events = ["ADT^A01", "ADT^A04"]
//	  segment "MSH" { required = true }
//	  group "PROCEDURE" {
//	    repeating = true
//	    segment "PR1" { required = true }
//	  }
//	}
//
// Block order inside a message or group is the schema order.
package hclschema

import (
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/gofhir/hl7v2/pkg/schema"
)

var fileSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "versions", Required: true},
		{Name: "primitives"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "message", LabelNames: []string{"name"}},
		{Type: "segment", LabelNames: []string{"name"}},
		{Type: "composite", LabelNames: []string{"name"}},
	},
}

var groupSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "events"},
		{Name: "required"},
		{Name: "repeating"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "segment", LabelNames: []string{"name"}},
		{Type: "group", LabelNames: []string{"name"}},
	},
}

type segmentBlock struct {
	Fields []*fieldBlock `hcl:"field,block"`
}

type fieldBlock struct {
	Name      string `hcl:"name,label"`
	Type      string `hcl:"type"`
	Min       int    `hcl:"min,optional"`
	Max       *int   `hcl:"max,optional"`
	MaxLength int    `hcl:"max_length,optional"`
	Table     string `hcl:"table,optional"`
	TypeFrom  int    `hcl:"type_from,optional"`
}

type compositeBlock struct {
	Components []*componentBlock `hcl:"component,block"`
}

type componentBlock struct {
	Name      string `hcl:"name,label"`
	Type      string `hcl:"type"`
	MaxLength int    `hcl:"max_length,optional"`
	Table     string `hcl:"table,optional"`
}

// evalContext exposes the constants catalogs may reference.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"unbounded": cty.NumberIntVal(schema.Unbounded),
		},
	}
}

// Source returns a loader for one catalog document.
func Source(filename string, src []byte) schema.Loader {
	return func(c *schema.Catalog) error {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCL(src, filename)
		if diags.HasErrors() {
			return fmt.Errorf("failed to parse HCL schema %s: %s", filename, diags.Error())
		}
		return decodeFile(c, file.Body)
	}
}

// File returns a loader reading a catalog from disk.
func File(filename string) schema.Loader {
	return func(c *schema.Catalog) error {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(filename)
		if diags.HasErrors() {
			return fmt.Errorf("failed to parse HCL schema %s: %s", filename, diags.Error())
		}
		return decodeFile(c, file.Body)
	}
}

// FS returns a loader for every *.hcl file in dir of fsys, in lexical order.
func FS(fsys fs.FS, dir string) schema.Loader {
	return func(c *schema.Catalog) error {
		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			return fmt.Errorf("failed to list schema directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".hcl") {
				continue
			}
			name := path.Join(dir, e.Name())
			src, err := fs.ReadFile(fsys, name)
			if err != nil {
				return fmt.Errorf("failed to read schema %s: %w", name, err)
			}
			if err := Source(name, src)(c); err != nil {
				return err
			}
		}
		return nil
	}
}

func decodeFile(c *schema.Catalog, body hcl.Body) error {
	ctx := evalContext()
	content, diags := body.Content(fileSchema)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL schema: %s", diags.Error())
	}

	var versions []string
	if diags := gohcl.DecodeExpression(content.Attributes["versions"].Expr, ctx, &versions); diags.HasErrors() {
		return fmt.Errorf("invalid versions: %s", diags.Error())
	}
	if len(versions) == 0 {
		return fmt.Errorf("schema declares no versions")
	}

	var primitives []string
	if attr, ok := content.Attributes["primitives"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, ctx, &primitives); diags.HasErrors() {
			return fmt.Errorf("invalid primitives: %s", diags.Error())
		}
	}

	var (
		structures []*schema.StructureDef
		types      []*schema.TypeDef
		events     = map[string][]string{}
	)
	for _, name := range primitives {
		types = append(types, &schema.TypeDef{Name: name})
	}

	for _, block := range content.Blocks {
		name := block.Labels[0]
		switch block.Type {
		case "segment":
			def, err := decodeSegment(name, block.Body, ctx)
			if err != nil {
				return err
			}
			structures = append(structures, def)
		case "composite":
			def, err := decodeComposite(name, block.Body, ctx)
			if err != nil {
				return err
			}
			types = append(types, def)
		case "message":
			defs, evs, err := decodeMessage(name, block.Body, ctx)
			if err != nil {
				return err
			}
			structures = append(structures, defs...)
			events[name] = evs
		}
	}

	for _, v := range versions {
		for _, d := range structures {
			c.AddStructure(v, d)
		}
		for _, t := range types {
			c.AddType(v, t)
		}
		for structure, evs := range events {
			for _, ev := range evs {
				msgType, trigger, _ := strings.Cut(ev, "^")
				c.MapEvent(v, msgType, trigger, structure)
			}
		}
	}
	return nil
}

func decodeSegment(name string, body hcl.Body, ctx *hcl.EvalContext) (*schema.StructureDef, error) {
	var sb segmentBlock
	if diags := gohcl.DecodeBody(body, ctx, &sb); diags.HasErrors() {
		return nil, fmt.Errorf("segment %s: %s", name, diags.Error())
	}
	def := &schema.StructureDef{Name: name, Kind: schema.KindSegment}
	for _, f := range sb.Fields {
		maxReps := 1
		if f.Max != nil {
			maxReps = *f.Max
		}
		if maxReps < 0 || f.Min < 0 || (maxReps != schema.Unbounded && f.Min > maxReps) {
			return nil, fmt.Errorf("segment %s field %s: invalid cardinality %d..%d", name, f.Name, f.Min, maxReps)
		}
		def.Fields = append(def.Fields, schema.FieldDef{
			Name:      f.Name,
			Type:      f.Type,
			MinReps:   f.Min,
			MaxReps:   maxReps,
			MaxLength: f.MaxLength,
			Table:     f.Table,
			TypeFrom:  f.TypeFrom,
		})
	}
	return def, nil
}

func decodeComposite(name string, body hcl.Body, ctx *hcl.EvalContext) (*schema.TypeDef, error) {
	var cb compositeBlock
	if diags := gohcl.DecodeBody(body, ctx, &cb); diags.HasErrors() {
		return nil, fmt.Errorf("composite %s: %s", name, diags.Error())
	}
	if len(cb.Components) == 0 {
		return nil, fmt.Errorf("composite %s declares no components", name)
	}
	def := &schema.TypeDef{Name: name}
	for _, comp := range cb.Components {
		def.Components = append(def.Components, schema.ComponentDef{
			Name:      comp.Name,
			Type:      comp.Type,
			MaxLength: comp.MaxLength,
			Table:     comp.Table,
		})
	}
	return def, nil
}

// decodeMessage returns the message definition followed by all nested group
// definitions, plus the events mapped to the message.
func decodeMessage(name string, body hcl.Body, ctx *hcl.EvalContext) ([]*schema.StructureDef, []string, error) {
	content, diags := body.Content(groupSchema)
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("message %s: %s", name, diags.Error())
	}
	var events []string
	if attr, ok := content.Attributes["events"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, ctx, &events); diags.HasErrors() {
			return nil, nil, fmt.Errorf("message %s events: %s", name, diags.Error())
		}
	}
	if len(events) == 0 {
		events = []string{strings.ReplaceAll(name, "_", "^")}
	}
	defs, err := decodeGroup(name, content, ctx)
	if err != nil {
		return nil, nil, err
	}
	return defs, events, nil
}

func decodeGroup(structure string, content *hcl.BodyContent, ctx *hcl.EvalContext) ([]*schema.StructureDef, error) {
	def := &schema.StructureDef{Name: structure, Kind: schema.KindGroup}
	defs := []*schema.StructureDef{def}
	seen := map[string]int{}

	for _, block := range content.Blocks {
		name := block.Labels[0]
		child, err := decodeChildFlags(structure, name, block, ctx)
		if err != nil {
			return nil, err
		}

		seen[name]++
		child.Name = name
		if n := seen[name]; n > 1 {
			child.Name = name + strconv.Itoa(n)
		}

		switch block.Type {
		case "segment":
			child.Kind = schema.KindSegment
			child.Structure = name
		case "group":
			child.Kind = schema.KindGroup
			child.Structure = schema.GroupStructureName(structure, name)
			inner, diags := block.Body.Content(groupSchema)
			if diags.HasErrors() {
				return nil, fmt.Errorf("group %s: %s", child.Structure, diags.Error())
			}
			nested, err := decodeGroup(child.Structure, inner, ctx)
			if err != nil {
				return nil, err
			}
			if len(nested[0].Children) == 0 {
				return nil, fmt.Errorf("group %s declares no children", child.Structure)
			}
			defs = append(defs, nested...)
		}
		def.Children = append(def.Children, child)
	}
	return defs, nil
}

type childFlags struct {
	Required  bool     `hcl:"required,optional"`
	Repeating bool     `hcl:"repeating,optional"`
	Remain    hcl.Body `hcl:",remain"`
}

func decodeChildFlags(parent, name string, block *hcl.Block, ctx *hcl.EvalContext) (schema.ChildDef, error) {
	var flags childFlags
	if diags := gohcl.DecodeBody(block.Body, ctx, &flags); diags.HasErrors() {
		return schema.ChildDef{}, fmt.Errorf("%s %s in %s: %s", block.Type, name, parent, diags.Error())
	}
	return schema.ChildDef{Required: flags.Required, Repeating: flags.Repeating}, nil
}
