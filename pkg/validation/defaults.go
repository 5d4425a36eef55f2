package validation

import (
	"github.com/gofhir/hl7v2/pkg/codec"
	"github.com/gofhir/hl7v2/terminology"
)

// DefaultContext returns a context with the standard rules for every
// version:
//
//   - formatted primitives (NM, SI, DT, TM, DTM, TS, ID, IS) lose leading
//     whitespace and must match their pattern and size
//   - messages must conform to their structure definition
//   - ER7 text must consist of segment lines and XML text must be well-formed
func DefaultContext() *Context {
	return DefaultContextWithTables(nil)
}

// DefaultContextWithTables is DefaultContext plus a CodeTableRule backed by
// tables. A nil lookup adds no table checks.
func DefaultContextWithTables(tables terminology.Lookup) *Context {
	ctx := NewContext()
	for _, ft := range formattedTypes {
		ctx.AddPrimitiveRule(Any, ft.typeName, TrimLeadingWhitespace{})
		if ft.size > 0 {
			ctx.AddPrimitiveRule(Any, ft.typeName, SizeRule{Max: ft.size})
		}
		ctx.AddPrimitiveRule(Any, ft.typeName, MustRegexRule(ft.pattern, ft.desc))
	}

	ctx.AddMessageRule(Any, Any, StructureRule{})
	if tables != nil {
		ctx.AddMessageRule(Any, Any, NewCodeTableRule(tables))
	}

	ctx.AddEncodingRule(Any, codec.EncodingER7, SegmentLineRule{})
	ctx.AddEncodingRule(Any, codec.EncodingXML, XMLWellFormedRule{})
	return ctx
}
