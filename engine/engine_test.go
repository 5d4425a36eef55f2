package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofhir/hl7v2"
	"github.com/gofhir/hl7v2/pkg/codec"
	"github.com/gofhir/hl7v2/pkg/hl7err"
	"github.com/gofhir/hl7v2/pkg/issue"
	"github.com/gofhir/hl7v2/stream"
)

const (
	admitHeader = "MSH|^~\\&|APP|FAC|REC|RFAC|20240102120000||ADT^A01^ADT_A01|CTRL1|P|2.5\r"
	admitEvent  = "EVN|A01|20240102120000\r"
	admitPID    = "PID|1||123^^^HOSP^MR||DOE^JOHN||19700101|M\r"
	admitVisit  = "PV1|1|I\r"

	admitMessage = admitHeader + admitEvent + admitPID + admitVisit

	unknownMessage = "MSH|^~\\&|A|B|C|D|20240102||ZZZ^Z99|1|P|2.5\rZAB|1\r"
)

func newEngine(t *testing.T, opts ...hl7v2.Option) *Engine {
	t.Helper()
	e, err := New(opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return e
}

func TestNew(t *testing.T) {
	e := newEngine(t)

	if e.Options().DefaultVersion != "2.5" {
		t.Errorf("DefaultVersion = %q; want 2.5", e.Options().DefaultVersion)
	}
	if ok, err := e.Tables().Contains("0001", "M"); err != nil || !ok {
		t.Errorf("Tables().Contains(0001, M) = %v, %v; want true", ok, err)
	}
	if _, err := e.Provider().ResolveStructure("2.5", "ADT_A01"); err != nil {
		t.Errorf("ResolveStructure() failed: %v", err)
	}
	if e.Metrics() == nil || e.Rules() == nil {
		t.Error("Metrics() and Rules() should be set")
	}
}

func TestNew_Files(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.hcl")

	if _, err := New(hl7v2.WithSchemaFiles(dir)); err != nil {
		t.Errorf("empty schema directory: %v", err)
	}
	if _, err := New(hl7v2.WithSchemaFiles(missing)); err == nil {
		t.Error("expected an error for a missing schema file")
	}
	if _, err := New(hl7v2.WithTables(missing)); err == nil {
		t.Error("expected an error for a missing table file")
	}

	local := filepath.Join(dir, "local.json")
	cs := `{
		"resourceType": "CodeSystem",
		"url": "http://terminology.hl7.org/CodeSystem/v2-9001",
		"status": "active",
		"content": "complete",
		"concept": [{"code": "X", "display": "Local"}]
	}`
	if err := os.WriteFile(local, []byte(cs), 0o600); err != nil {
		t.Fatal(err)
	}
	e := newEngine(t, hl7v2.WithTables(local))
	if ok, err := e.Tables().Contains("9001", "X"); err != nil || !ok {
		t.Errorf("Contains(9001, X) = %v, %v; want true", ok, err)
	}
}

func TestNew_InvalidExpressionRule(t *testing.T) {
	_, err := New(hl7v2.WithExpressionRules(hl7v2.ExpressionRule{Expression: "segments.where("}))
	if !errors.Is(err, hl7err.ErrPathSyntax) {
		t.Errorf("New() error = %v; want path syntax error", err)
	}
}

func TestParseEncode(t *testing.T) {
	e := newEngine(t)

	msg, err := e.Parse(admitMessage)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if msg.Structure() != "ADT_A01" || msg.Version() != "2.5" {
		t.Errorf("message = %s", msg)
	}

	er7, err := e.Encode(msg)
	if err != nil || er7 != admitMessage {
		t.Errorf("Encode() = %q, %v; want %q", er7, err, admitMessage)
	}

	doc, err := e.EncodeAs(msg, codec.EncodingXML)
	if err != nil {
		t.Fatalf("EncodeAs(XML) failed: %v", err)
	}
	if !strings.Contains(doc, "<ADT_A01") {
		t.Errorf("XML document = %s", doc)
	}
	back, err := e.ParseBytes([]byte(doc))
	if err != nil {
		t.Fatalf("ParseBytes(XML) failed: %v", err)
	}
	if out, _ := e.Encode(back); out != admitMessage {
		t.Errorf("ER7 -> XML -> ER7 = %q; want %q", out, admitMessage)
	}

	if _, err := e.EncodeAs(msg, "JSON"); !errors.Is(err, hl7err.ErrEncoding) {
		t.Errorf("EncodeAs(JSON) error = %v; want encoding error", err)
	}
	if _, err := e.Parse("hello"); !errors.Is(err, hl7err.ErrEncoding) {
		t.Errorf("Parse(hello) error = %v; want encoding error", err)
	}

	m := e.Metrics()
	if m.ParsesTotal() != 3 || m.ParsesFailed() != 1 {
		t.Errorf("parses = %d (%d failed); want 3 (1 failed)", m.ParsesTotal(), m.ParsesFailed())
	}
	if m.EncodesTotal() != 3 {
		t.Errorf("EncodesTotal() = %d; want 3", m.EncodesTotal())
	}
}

func TestTerser(t *testing.T) {
	e := newEngine(t)
	msg, err := e.Parse(admitMessage)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	ts := e.Terser(msg)
	if v, ok, err := ts.Get("/PID-5-1"); err != nil || !ok || v != "DOE" {
		t.Errorf("Get(/PID-5-1) = %q, %v, %v; want DOE", v, ok, err)
	}
	if err := ts.Set("/PID-5-1", "ROE"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	out, _ := e.Encode(msg)
	if !strings.Contains(out, "PID|1||123^^^HOSP^MR||ROE^JOHN|") {
		t.Errorf("Encode() after Set = %q", out)
	}
}

func TestParseAndValidate(t *testing.T) {
	e := newEngine(t)

	msg, result, err := e.ParseAndValidate(context.Background(), admitMessage)
	if err != nil {
		t.Fatalf("ParseAndValidate() error = %v", err)
	}
	if msg == nil {
		t.Fatal("message should be decoded")
	}
	if result.HasErrors() {
		t.Errorf("issues = %+v; want no errors", result.Issues)
	}
	// tables 0300 and 0203 are not shipped
	if result.InfoCount() != 2 {
		t.Errorf("InfoCount() = %d; want 2", result.InfoCount())
	}
	s := result.Stats
	if s.Structure != "ADT_A01" || s.Size != len(admitMessage) || s.RulesRun != 3 {
		t.Errorf("Stats = %+v", s)
	}

	m := e.Metrics()
	if m.ValidationsTotal() != 1 || m.ValidationsValid() != 1 {
		t.Errorf("validations = %d/%d; want 1/1", m.ValidationsValid(), m.ValidationsTotal())
	}
	if m.InfosTotal() != 2 {
		t.Errorf("InfosTotal() = %d; want 2", m.InfosTotal())
	}
	if m.CacheHits()+m.CacheMisses() == 0 {
		t.Error("table lookups should be counted")
	}
	if _, ok := m.StageStats("message-rules"); !ok {
		t.Error("message-rules stage should be recorded")
	}
}

func TestParseAndValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		opts    []hl7v2.Option
		text    string
		decoded bool
		errors  int
		code    issue.Code
	}{
		{"missing segments", nil, admitHeader + admitPID, true, 2, issue.CodeStructure},
		{"bad field value", nil, strings.Replace(admitMessage, "PID|1|", "PID|abc|", 1), true, 1, issue.CodeValue},
		{"value too long", nil, strings.Replace(admitMessage, "CTRL1", "CTRL-0123456789-ABCDEFG", 1), true, 1, issue.CodeValue},
		{"unreadable", nil, "hello", false, 1, issue.CodeInvalid},
		{"strict unknown structure", []hl7v2.Option{hl7v2.WithStrict(true)}, unknownMessage, false, 1, issue.CodeStructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, tt.opts...)
			msg, result, err := e.ParseAndValidate(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("ParseAndValidate() error = %v", err)
			}
			if (msg != nil) != tt.decoded {
				t.Errorf("decoded = %v; want %v", msg != nil, tt.decoded)
			}
			if result.ErrorCount() != tt.errors {
				t.Fatalf("ErrorCount() = %d; want %d: %+v", result.ErrorCount(), tt.errors, result.Issues)
			}
			errs := result.Filter(issue.SeverityError).Issues
			if len(errs) == 0 {
				errs = result.Filter(issue.SeverityFatal).Issues
			}
			if errs[0].Code != tt.code {
				t.Errorf("code = %q; want %q", errs[0].Code, tt.code)
			}
		})
	}
}

func TestParseAndValidateLocation(t *testing.T) {
	e := newEngine(t)
	text := strings.Replace(admitMessage, "CTRL1", "CTRL-0123456789-ABCDEFG", 1)

	_, result, err := e.ParseAndValidate(context.Background(), text)
	if err != nil {
		t.Fatalf("ParseAndValidate() error = %v", err)
	}
	errs := result.Filter(issue.SeverityError).Issues
	if len(errs) != 1 || errs[0].Location == nil {
		t.Fatalf("errors = %+v; want one located error", errs)
	}
	if loc := errs[0].Location; loc.Line != 1 || loc.Column != 59 {
		t.Errorf("Location = %d:%d; want 1:59", loc.Line, loc.Column)
	}
}

func TestParseAndValidateFailFast(t *testing.T) {
	e := newEngine(t, hl7v2.StrictOptions()...)

	_, result, err := e.ParseAndValidate(context.Background(), admitHeader+admitPID)
	if !errors.Is(err, hl7err.ErrStructural) {
		t.Errorf("error = %v; want structural", err)
	}
	if result.ErrorCount() != 1 {
		t.Errorf("ErrorCount() = %d; want 1", result.ErrorCount())
	}

	_, _, err = e.ParseAndValidate(context.Background(), unknownMessage)
	if !errors.Is(err, hl7err.ErrStructural) {
		t.Errorf("strict decode error = %v; want structural", err)
	}

	_, _, err = e.ParseAndValidate(context.Background(), "hello")
	if !errors.Is(err, hl7err.ErrEncoding) {
		t.Errorf("unreadable error = %v; want encoding", err)
	}
}

func TestParseAndValidateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newEngine(t).ParseAndValidate(ctx, admitMessage)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v; want context.Canceled", err)
	}
}

func TestValidationDisabled(t *testing.T) {
	e := newEngine(t, hl7v2.WithValidation(false))

	_, result, err := e.ParseAndValidate(context.Background(), strings.Replace(admitMessage, "PID|1|", "PID|abc|", 1))
	if err != nil {
		t.Fatalf("ParseAndValidate() error = %v", err)
	}
	if len(result.Issues) != 0 {
		t.Errorf("issues = %+v; want none with validation disabled", result.Issues)
	}
}

func TestExpressionRules(t *testing.T) {
	e := newEngine(t,
		hl7v2.WithTableValidation(false),
		hl7v2.WithExpressionRules(
			hl7v2.ExpressionRule{Scope: "ADT^A01", Expression: "version = '2.4'", Description: "admissions use 2.4"},
			hl7v2.ExpressionRule{Scope: "ORU", Expression: "version = '2.4'"},
		),
	)

	msg, err := e.Parse(admitMessage)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	result, err := e.Validate(msg)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if result.ErrorCount() != 1 {
		t.Fatalf("issues = %+v; want one failed expression", result.Issues)
	}
	if want := "admissions use 2.4: 'version = '2.4'' is false"; result.Issues[0].Diagnostics != want {
		t.Errorf("diagnostics = %q; want %q", result.Issues[0].Diagnostics, want)
	}
	if result.Stats.RulesRun != 2 {
		t.Errorf("RulesRun = %d; want 2", result.Stats.RulesRun)
	}
}

func TestValidateBatch(t *testing.T) {
	e := newEngine(t, hl7v2.WithWorkerCount(4))

	messages := make([]string, 8)
	for i := range messages {
		messages[i] = strings.Replace(admitMessage, "CTRL1", fmt.Sprintf("C%d", i), 1)
	}
	messages[5] = admitHeader + admitPID

	br := e.ValidateBatch(context.Background(), messages)
	if br.CompletedJobs != 8 || br.FailedJobs != 0 {
		t.Errorf("CompletedJobs, FailedJobs = %d, %d; want 8, 0", br.CompletedJobs, br.FailedJobs)
	}
	for i, r := range br.Results {
		wantErrors := 0
		if i == 5 {
			wantErrors = 2
		}
		if r.Index != i || r.Result.ErrorCount() != wantErrors {
			t.Errorf("Results[%d]: index %d, %d errors; want %d", i, r.Index, r.Result.ErrorCount(), wantErrors)
		}
	}
	if br.ErrorCount() != 2 {
		t.Errorf("ErrorCount() = %d; want 2", br.ErrorCount())
	}
}

func TestValidateStream(t *testing.T) {
	e := newEngine(t)
	input := "FHS|^~\\&\r\n" + admitMessage + admitHeader + admitPID + "FTS|2\r\n"

	for name, results := range map[string]<-chan *stream.MessageResult{
		"sequential": e.ValidateStream(context.Background(), strings.NewReader(input)),
		"parallel":   e.ValidateStreamParallel(context.Background(), strings.NewReader(input)),
	} {
		agg := stream.Aggregate(results)
		if agg.TotalMessages != 2 || agg.MessagesWithErrors != 1 {
			t.Errorf("%s: %s", name, agg.Summary())
		}
	}
}

func BenchmarkParseAndValidate(b *testing.B) {
	e, err := New()
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := e.ParseAndValidate(ctx, admitMessage); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkValidateBatch(b *testing.B) {
	e, err := New()
	if err != nil {
		b.Fatal(err)
	}
	messages := make([]string, 100)
	for i := range messages {
		messages[i] = admitMessage
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.ValidateBatch(ctx, messages)
	}
}
