package hl7v2

import (
	"runtime"
)

// Option configures an engine.
type Option func(*Options)

// ExpressionRule is a FHIRPath rule evaluated against the JSON projection of
// every message whose type matches Scope (TYPE^EVENT, TYPE or "*").
type ExpressionRule struct {
	Scope       string
	Expression  string
	Description string
}

// Options holds all configuration for an engine.
type Options struct {
	// Decoding
	Strict         bool
	DefaultVersion string

	// Validation flags
	Validation     bool
	ValidateTables bool
	FailFast       bool

	// Extra definitions
	SchemaFiles     []string
	TableFiles      []string
	ExpressionRules []ExpressionRule

	// Performance
	WorkerCount int
	CacheSize   int
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		Strict:         false,
		DefaultVersion: string(V25),

		// Primitive and table checks are on; failures are collected.
		Validation:     true,
		ValidateTables: true,
		FailFast:       false,

		WorkerCount: runtime.NumCPU(),
		CacheSize:   1024,
	}
}

// --- Decoding Options ---

// WithStrict makes decoding reject unknown segments, versions and
// structures instead of recovering.
func WithStrict(strict bool) Option {
	return func(o *Options) {
		o.Strict = strict
	}
}

// WithDefaultVersion sets the version used when MSH-12 is empty.
func WithDefaultVersion(version string) Option {
	return func(o *Options) {
		if version != "" {
			o.DefaultVersion = version
		}
	}
}

// --- Validation Options ---

// WithValidation enables primitive rules while decoding and message rules
// during validation.
func WithValidation(enable bool) Option {
	return func(o *Options) {
		o.Validation = enable
	}
}

// WithTableValidation enables checking coded values against HL7 tables.
func WithTableValidation(enable bool) Option {
	return func(o *Options) {
		o.ValidateTables = enable
	}
}

// WithFailFast makes the first validation failure a terminal error.
func WithFailFast(enable bool) Option {
	return func(o *Options) {
		o.FailFast = enable
	}
}

// WithExpressionRules adds FHIRPath rules to the validation context.
func WithExpressionRules(rules ...ExpressionRule) Option {
	return func(o *Options) {
		o.ExpressionRules = append(o.ExpressionRules, rules...)
	}
}

// --- Definition Options ---

// WithSchemaFiles loads extra HCL catalogs after the embedded one.
// A path may name a file or a directory of *.hcl files.
func WithSchemaFiles(paths ...string) Option {
	return func(o *Options) {
		o.SchemaFiles = append(o.SchemaFiles, paths...)
	}
}

// WithTables loads HL7 tables from FHIR CodeSystem JSON files (a CodeSystem
// or a Bundle of them) in addition to the embedded tables.
func WithTables(paths ...string) Option {
	return func(o *Options) {
		o.TableFiles = append(o.TableFiles, paths...)
	}
}

// --- Performance Options ---

// WithWorkerCount sets the number of workers for batch processing.
// Defaults to runtime.NumCPU().
func WithWorkerCount(count int) Option {
	return func(o *Options) {
		if count > 0 {
			o.WorkerCount = count
		}
	}
}

// WithCacheSize sets the size of the table lookup and rule set caches.
func WithCacheSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.CacheSize = size
		}
	}
}

// --- Presets ---

// StrictOptions returns options for strict processing: unknown content is
// rejected and the first failure stops processing.
func StrictOptions() []Option {
	return []Option{
		WithStrict(true),
		WithValidation(true),
		WithTableValidation(true),
		WithFailFast(true),
	}
}

// LenientOptions returns options that decode anything decodable and skip
// validation.
func LenientOptions() []Option {
	return []Option{
		WithStrict(false),
		WithValidation(false),
		WithTableValidation(false),
		WithFailFast(false),
	}
}

// Apply returns the defaults with opts applied in order.
func Apply(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}
