// Package main implements the hl7v2 command line tool.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofhir/hl7v2"
	"github.com/gofhir/hl7v2/engine"
	"github.com/gofhir/hl7v2/pkg/codec"
	"github.com/gofhir/hl7v2/pkg/logger"
	"github.com/gofhir/hl7v2/stream"
)

const (
	version = "0.1.0"
	usage   = `hl7v2 - HL7 v2 message tool

Usage:
  hl7v2 [options] <file>...
  hl7v2 [options] -             (read from stdin)
  cat batch.hl7 | hl7v2 -       (pipe input)

A file may hold several ER7 messages, optionally wrapped in FHS/BHS batch
segments or MLLP framing, or a single HL7 v2.xml document.

Modes:
  validate  parse and validate every message (default)
  parse     print the message structure and every segment's position
  xml       convert to HL7 v2.xml
  er7       convert to ER7
  get       print the values at the -path terser paths

Examples:
  hl7v2 adt.hl7
  hl7v2 -output json -fail-fast batch.hl7
  hl7v2 -mode xml adt.hl7 > adt.xml
  hl7v2 -mode get -path /PID-5-1,/PID-5-2 adt.hl7
  hl7v2 -schema local.hcl -tables zcodes.json adt.hl7

Options:
`
)

// Mode selects what the tool does with each message.
type Mode string

// Mode constants.
const (
	ModeValidate Mode = "validate"
	ModeParse    Mode = "parse"
	ModeXML      Mode = "xml"
	ModeER7      Mode = "er7"
	ModeGet      Mode = "get"
)

// OutputFormat specifies the output format.
type OutputFormat string

// Output format constants.
const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// Config holds CLI configuration
type Config struct {
	Mode        Mode
	Paths       []string
	Output      OutputFormat
	Strict      bool
	FailFast    bool
	NoTables    bool
	Schemas     []string
	Tables      []string
	Version     string
	LogLevel    string
	Quiet       bool
	ShowVersion bool
	Help        bool
	Files       []string
}

func main() {
	config, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if config.ShowVersion {
		fmt.Printf("hl7v2 v%s\n", version)
		os.Exit(0)
	}

	if config.Help || len(config.Files) == 0 {
		flag.Usage()
		os.Exit(0)
	}

	os.Exit(run(config, os.Stdout))
}

func parseFlags(args []string) (*Config, error) {
	config := &Config{}
	fs := flag.NewFlagSet("hl7v2", flag.ContinueOnError)

	var mode, paths, output, schemas, tables string

	fs.StringVar(&mode, "mode", "validate", "Mode: validate, parse, xml, er7, get")
	fs.StringVar(&paths, "path", "", "Terser path(s) for -mode get (comma-separated)")
	fs.StringVar(&output, "output", "text", "Output format: text, json")
	fs.BoolVar(&config.Strict, "strict", false, "Reject segments, versions and structures the schema does not know")
	fs.BoolVar(&config.FailFast, "fail-fast", false, "Stop a message at its first validation failure")
	fs.BoolVar(&config.NoTables, "no-tables", false, "Skip code table checks")
	fs.StringVar(&schemas, "schema", "", "Extra HCL schema file(s) or directories (comma-separated)")
	fs.StringVar(&tables, "tables", "", "Extra code table file(s) as FHIR CodeSystem JSON (comma-separated)")
	fs.StringVar(&config.Version, "default-version", string(hl7v2.V25), "Version used when MSH-12 is empty")
	fs.StringVar(&config.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error, none")
	fs.BoolVar(&config.Quiet, "quiet", false, "Only show errors and warnings")
	fs.BoolVar(&config.ShowVersion, "v", false, "Show version")
	fs.BoolVar(&config.Help, "help", false, "Show help")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.SetOutput(os.Stderr)
		fs.PrintDefaults()
	}
	fs.Usage = flag.Usage

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			config.Help = true
			return config, nil
		}
		return nil, err
	}

	switch m := Mode(strings.ToLower(mode)); m {
	case ModeValidate, ModeParse, ModeXML, ModeER7, ModeGet:
		config.Mode = m
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	switch strings.ToLower(output) {
	case "json":
		config.Output = OutputJSON
	default:
		config.Output = OutputText
	}

	config.Paths = splitList(paths)
	config.Schemas = splitList(schemas)
	config.Tables = splitList(tables)
	if config.Mode == ModeGet && len(config.Paths) == 0 {
		return nil, fmt.Errorf("-mode get needs at least one -path")
	}

	config.Files = fs.Args()
	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func run(config *Config, w io.Writer) int {
	level, err := logger.ParseLevel(config.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	logger.SetLevel(level)

	e, err := engine.New(
		hl7v2.WithStrict(config.Strict),
		hl7v2.WithFailFast(config.FailFast),
		hl7v2.WithTableValidation(!config.NoTables),
		hl7v2.WithDefaultVersion(config.Version),
		hl7v2.WithSchemaFiles(config.Schemas...),
		hl7v2.WithTables(config.Tables...),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize engine: %v\n", err)
		return 1
	}

	p := &processor{engine: e, config: config, out: w}
	for _, file := range config.Files {
		if file == "-" {
			p.input("stdin", os.Stdin)
			continue
		}

		matches, globErr := filepath.Glob(file)
		if globErr != nil {
			fmt.Fprintf(os.Stderr, "Error with pattern '%s': %v\n", file, globErr)
			p.failed = true
			continue
		}
		if len(matches) == 0 {
			fmt.Fprintf(os.Stderr, "No files match pattern: %s\n", file)
			p.failed = true
			continue
		}
		for _, match := range matches {
			f, err := os.Open(match)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", match, err)
				p.failed = true
				continue
			}
			p.input(match, f)
			f.Close()
		}
	}

	if config.Output == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(p.outputs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if p.failed {
		return 1
	}
	return 0
}

// processor runs one mode over every message of every input.
type processor struct {
	engine  *engine.Engine
	config  *Config
	out     io.Writer
	outputs []MessageOutput
	failed  bool
}

// input handles one file. XML documents are read whole; ER7 input is split
// into messages as it is read.
func (p *processor) input(name string, r io.Reader) {
	br := newPeekReader(r)
	if codec.DetectEncoding(br.head()) == codec.EncodingXML {
		data, err := io.ReadAll(br)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", name, err)
			p.failed = true
			return
		}
		p.message(name, stream.Message{Line: 1, Text: string(data)})
		return
	}

	sc := stream.NewScanner(br)
	for sc.Scan() {
		p.message(name, sc.Message())
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", name, err)
		p.failed = true
	}
}

func (p *processor) message(name string, m stream.Message) {
	out := p.handle(m)
	out.Source = fmt.Sprintf("%s#%d", name, m.Index+1)
	out.Line = m.Line
	if !out.Valid {
		p.failed = true
	}
	if p.config.Output == OutputJSON {
		p.outputs = append(p.outputs, out)
		return
	}
	printText(p.out, out, p.config)
}
