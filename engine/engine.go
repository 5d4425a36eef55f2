// Package engine wires the schema catalog, codecs, code tables and
// validation rules into one HL7 v2 engine.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gofhir/hl7v2"
	"github.com/gofhir/hl7v2/cache"
	"github.com/gofhir/hl7v2/pkg/codec"
	"github.com/gofhir/hl7v2/pkg/codec/xmlcodec"
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/issue"
	"github.com/gofhir/hl7v2/pkg/logger"
	"github.com/gofhir/hl7v2/pkg/model"
	"github.com/gofhir/hl7v2/pkg/schema"
	"github.com/gofhir/hl7v2/pkg/schema/hclschema"
	"github.com/gofhir/hl7v2/pkg/terser"
	"github.com/gofhir/hl7v2/pkg/validation"
	"github.com/gofhir/hl7v2/specs"
	"github.com/gofhir/hl7v2/stream"
	"github.com/gofhir/hl7v2/terminology"
	"github.com/gofhir/hl7v2/worker"
)

// Engine parses, encodes and validates HL7 v2 messages.
// It is safe for concurrent use.
type Engine struct {
	options *hl7v2.Options

	registry  *schema.Registry
	tables    *terminology.Cached
	rules     *validation.Context
	validator *validation.Validator

	er7 *codec.PipeParser
	xml *xmlcodec.XMLParser

	batch *worker.BatchProcessor

	metrics   *hl7v2.Metrics
	cacheMu   sync.Mutex
	lastCache cache.Stats
}

// Compile-time interface check.
var _ worker.Processor = (*Engine)(nil)

// New creates an engine. Schema and table files named in the options are
// loaded immediately so configuration errors surface here.
func New(opts ...hl7v2.Option) (*Engine, error) {
	options := hl7v2.Apply(opts...)

	e := &Engine{
		options: options,
		metrics: hl7v2.NewMetrics(),
	}

	registry, err := newRegistry(options.SchemaFiles)
	if err != nil {
		return nil, err
	}
	e.registry = registry

	tables, err := newTables(options.TableFiles)
	if err != nil {
		return nil, err
	}
	e.tables = terminology.NewCached(tables, options.CacheSize)

	if err := e.buildRules(); err != nil {
		return nil, err
	}

	codecOpts := []codec.Option{
		codec.WithStrict(options.Strict),
		codec.WithDefaultVersion(options.DefaultVersion),
		codec.WithFailFast(options.FailFast),
	}
	if options.Validation {
		codecOpts = append(codecOpts, codec.WithValidator(e.rules))
	}
	e.er7 = codec.NewPipeParser(e.registry, codecOpts...)
	e.xml = xmlcodec.NewXMLParser(e.registry, codecOpts...)

	e.validator = validation.NewValidator(e.rules, validation.WithFailFast(options.FailFast))
	e.batch = worker.NewBatchProcessor(e, options.WorkerCount)

	return e, nil
}

func newRegistry(files []string) (*schema.Registry, error) {
	loaders := []schema.Loader{specs.Loader()}
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("schema file: %w", err)
		}
		if info.IsDir() {
			loaders = append(loaders, hclschema.FS(os.DirFS(path), "."))
		} else {
			loaders = append(loaders, hclschema.File(path))
		}
	}

	registry := schema.NewRegistry(loaders...)
	if err := registry.Init(); err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	logger.Debug("schema loaded: versions %v", registry.Versions())
	return registry, nil
}

func newTables(files []string) (*terminology.InMemory, error) {
	tables := terminology.NewInMemory()
	if _, err := tables.LoadEmbedded(); err != nil {
		return nil, fmt.Errorf("failed to load embedded tables: %w", err)
	}
	for _, path := range files {
		stats, err := tables.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load tables: %w", err)
		}
		logger.Debug("loaded %d tables from %s", stats.TablesLoaded, path)
	}
	return tables, nil
}

// buildRules sets up the validation context. With validation disabled the
// context is empty and only structural problems found while decoding are
// reported.
func (e *Engine) buildRules() error {
	switch {
	case !e.options.Validation:
		e.rules = validation.NewContextWithCacheSize(e.options.CacheSize)
		return nil
	case e.options.ValidateTables:
		e.rules = validation.DefaultContextWithTables(e.tables)
	default:
		e.rules = validation.DefaultContext()
	}

	for _, r := range e.options.ExpressionRules {
		rule, err := validation.NewExpressionRule(r.Expression, r.Description)
		if err != nil {
			return err
		}
		scope := r.Scope
		if scope == "" {
			scope = validation.Any
		}
		e.rules.AddMessageRule(validation.Any, scope, rule)
	}
	return nil
}

// --- Decoding and encoding ---

func (e *Engine) codecFor(encoding string) (codec.Codec, error) {
	switch encoding {
	case codec.EncodingER7:
		return e.er7, nil
	case codec.EncodingXML:
		return e.xml, nil
	default:
		return nil, hl7err.Encoding("unsupported encoding %q", encoding)
	}
}

// Parse decodes ER7 or XML text, detecting the encoding.
func (e *Engine) Parse(text string) (*model.Message, error) {
	enc := codec.DetectEncoding(text)
	if enc == "" {
		e.metrics.RecordParse(true)
		return nil, hl7err.Encoding("message is neither ER7 nor XML")
	}
	c, err := e.codecFor(enc)
	if err != nil {
		return nil, err
	}
	return e.parse(func() (*model.Message, error) { return c.Parse(text) })
}

// ParseBytes decodes raw bytes. ER7 bytes are converted from the charset
// declared in MSH-18.
func (e *Engine) ParseBytes(b []byte) (*model.Message, error) {
	head := b
	if len(head) > 64 {
		head = head[:64]
	}
	if codec.DetectEncoding(string(head)) == codec.EncodingXML {
		return e.parse(func() (*model.Message, error) { return e.xml.Parse(string(b)) })
	}
	return e.parse(func() (*model.Message, error) { return e.er7.ParseBytes(b) })
}

func (e *Engine) parse(decode func() (*model.Message, error)) (*model.Message, error) {
	start := time.Now()
	msg, err := decode()
	e.metrics.RecordParse(err != nil)
	if err != nil {
		e.metrics.RecordStage("parse", time.Since(start), 1)
		return nil, err
	}
	e.metrics.RecordStage("parse", time.Since(start), len(msg.Problems()))
	return msg, nil
}

// Encode writes msg as ER7.
func (e *Engine) Encode(msg *model.Message) (string, error) {
	return e.EncodeAs(msg, codec.EncodingER7)
}

// EncodeAs writes msg in the given encoding (codec.EncodingER7 or
// codec.EncodingXML).
func (e *Engine) EncodeAs(msg *model.Message, encoding string) (string, error) {
	c, err := e.codecFor(encoding)
	if err != nil {
		return "", err
	}
	start := time.Now()
	text, err := c.Encode(msg)
	if err != nil {
		return "", err
	}
	e.metrics.RecordEncode()
	e.metrics.RecordStage("encode", time.Since(start), 0)
	return text, nil
}

// Terser returns a path accessor for msg.
func (e *Engine) Terser(msg *model.Message) *terser.Terser {
	return terser.New(msg)
}

// --- Validation ---

// Validate applies the message rules to a decoded message.
func (e *Engine) Validate(msg *model.Message) (*issue.Result, error) {
	start := time.Now()
	result, err := e.validator.ValidateMessage(msg)
	e.record(result, start, "message-rules")
	return result, err
}

// ParseAndValidate runs the encoding rules on text, decodes it and applies
// the message rules. Issues on ER7 text carry their line and column.
//
// A message that cannot be decoded yields a nil message and an issue in the
// result; the error is reserved for fail-fast failures and cancellation.
func (e *Engine) ParseAndValidate(ctx context.Context, text string) (*model.Message, *issue.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	start := time.Now()

	result, err := e.validator.ValidateEncoded(text, "", "")
	e.metrics.RecordStage("encoding-rules", time.Since(start), len(result.Issues))
	if err != nil || codec.DetectEncoding(text) == "" {
		e.record(result, start, "")
		return nil, result, err
	}

	msg, err := e.Parse(text)
	if err != nil {
		result.AddErr(err, "parser")
		validation.Locate(result, text)
		e.record(result, start, "")
		if e.options.FailFast {
			return nil, result, err
		}
		return nil, result, nil
	}

	rulesStart := time.Now()
	msgResult, err := e.validator.ValidateMessage(msg)
	e.metrics.RecordStage("message-rules", time.Since(rulesStart), len(msgResult.Issues))

	result.Merge(msgResult)
	msgResult.Stats.Size = result.Stats.Size
	msgResult.Stats.RulesRun += result.Stats.RulesRun
	result.Stats = msgResult.Stats
	result.Stats.Duration = time.Since(start).Nanoseconds()
	validation.Locate(result, text)

	e.record(result, start, "")
	return msg, result, err
}

// Process implements worker.Processor.
func (e *Engine) Process(ctx context.Context, message string) (*issue.Result, error) {
	_, result, err := e.ParseAndValidate(ctx, message)
	return result, err
}

// ValidateBatch parses and validates messages in parallel. Results are in
// input order.
func (e *Engine) ValidateBatch(ctx context.Context, messages []string) *worker.BatchResult {
	return e.batch.ProcessBatch(ctx, messages)
}

// ValidateStream reads concatenated messages from r and validates them one
// at a time.
func (e *Engine) ValidateStream(ctx context.Context, r io.Reader) <-chan *stream.MessageResult {
	return stream.NewProcessor(e).
		WithWorkerCount(e.options.WorkerCount).
		Process(ctx, r)
}

// ValidateStreamParallel validates the messages of r on a worker pool while
// preserving input order.
func (e *Engine) ValidateStreamParallel(ctx context.Context, r io.Reader) <-chan *stream.MessageResult {
	return stream.NewProcessor(e).
		WithWorkerCount(e.options.WorkerCount).
		ProcessParallel(ctx, r)
}

// record updates the metrics for a finished validation. A non-empty stage
// also records the stage timing.
func (e *Engine) record(result *issue.Result, start time.Time, stage string) {
	d := time.Since(start)
	e.metrics.RecordValidation(d, !result.HasErrors())
	e.metrics.RecordResult(result)
	if stage != "" {
		e.metrics.RecordStage(stage, d, len(result.Issues))
	}

	// table cache counters are cumulative; record what is new since last time
	e.cacheMu.Lock()
	s := e.tables.Stats()
	e.metrics.RecordCache(s.Hits-e.lastCache.Hits, s.Misses-e.lastCache.Misses)
	e.lastCache = s
	e.cacheMu.Unlock()
}

// --- Accessors ---

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *hl7v2.Metrics {
	return e.metrics
}

// Options returns the engine's options.
func (e *Engine) Options() *hl7v2.Options {
	return e.options
}

// Tables returns the code tables used for validation.
func (e *Engine) Tables() terminology.Lookup {
	return e.tables
}

// Provider returns the schema catalog.
func (e *Engine) Provider() schema.Provider {
	return e.registry
}

// Rules returns the validation context. Rules added to it apply to later
// validations.
func (e *Engine) Rules() *validation.Context {
	return e.rules
}
