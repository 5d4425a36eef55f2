// Package hl7v2 holds the shared configuration, version list and metrics of
// a schema-driven HL7 v2 engine.
//
// Messages are decoded from ER7 (pipe and hat) or XML text into a typed
// model built from a schema catalog, queried and modified with terse paths,
// encoded back, and validated against bindable rules.
//
// # Quick Start
//
//	import (
//	    "github.com/gofhir/hl7v2"
//	    "github.com/gofhir/hl7v2/engine"
//	)
//
//	e, err := engine.New(hl7v2.WithFailFast(false))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	msg, result, err := e.ParseAndValidate(ctx, text)
//	if result.HasErrors() {
//	    for _, is := range result.Issues {
//	        fmt.Println(is.Expression, is.Diagnostics)
//	    }
//	}
//
//	t := e.Terser(msg)
//	name, _ := t.Get("/PID-5-1")
//
// # Functional Options
//
//	e, err := engine.New(
//	    hl7v2.WithStrict(true),
//	    hl7v2.WithDefaultVersion("2.5"),
//	    hl7v2.WithTables("tables/local.json"),
//	    hl7v2.WithExpressionRules(hl7v2.ExpressionRule{
//	        Scope:       "ADT",
//	        Expression:  "segments.where(name = 'PV1').exists()",
//	        Description: "admissions carry a visit",
//	    }),
//	)
//
// # Layout
//
//   - pkg/delimiter: encoding characters and escaping
//   - pkg/schema: structure and type definitions, HCL catalog loader
//   - pkg/model: messages, groups, segments and data types
//   - pkg/navigator: places decoded segments in the group tree
//   - pkg/codec: ER7 and XML codecs
//   - pkg/terser: path based access
//   - pkg/validation: rule bindings and the validator
//   - terminology: HL7 tables loaded from FHIR CodeSystems
//   - stream, worker: batch input and parallel processing
package hl7v2
