package hl7v2

import (
	"sync"
	"testing"
	"time"

	"github.com/gofhir/hl7v2/pkg/issue"
)

func TestMetrics_Basic(t *testing.T) {
	m := NewMetrics()

	if m.ValidationsTotal() != 0 {
		t.Errorf("ValidationsTotal() = %d; want 0", m.ValidationsTotal())
	}
	if m.MinValidationTime() != 0 {
		t.Errorf("MinValidationTime() = %v; want 0", m.MinValidationTime())
	}

	m.RecordParse(false)
	m.RecordParse(true)
	m.RecordEncode()

	if m.ParsesTotal() != 2 {
		t.Errorf("ParsesTotal() = %d; want 2", m.ParsesTotal())
	}
	if m.ParsesFailed() != 1 {
		t.Errorf("ParsesFailed() = %d; want 1", m.ParsesFailed())
	}
	if m.EncodesTotal() != 1 {
		t.Errorf("EncodesTotal() = %d; want 1", m.EncodesTotal())
	}
}

func TestMetrics_ValidationRate(t *testing.T) {
	m := NewMetrics()

	if m.ValidationRate() != 0 {
		t.Errorf("ValidationRate() = %v; want 0", m.ValidationRate())
	}

	m.RecordValidation(time.Millisecond, true)
	m.RecordValidation(time.Millisecond, true)
	m.RecordValidation(time.Millisecond, true)
	m.RecordValidation(time.Millisecond, false)

	if m.ValidationRate() != 0.75 {
		t.Errorf("ValidationRate() = %v; want 0.75", m.ValidationRate())
	}
	if m.ValidationsValid() != 3 {
		t.Errorf("ValidationsValid() = %d; want 3", m.ValidationsValid())
	}
}

func TestMetrics_ValidationTime(t *testing.T) {
	m := NewMetrics()

	m.RecordValidation(10*time.Millisecond, true)
	m.RecordValidation(30*time.Millisecond, true)
	m.RecordValidation(20*time.Millisecond, true)

	if m.MinValidationTime() != 10*time.Millisecond {
		t.Errorf("MinValidationTime() = %v; want 10ms", m.MinValidationTime())
	}
	if m.MaxValidationTime() != 30*time.Millisecond {
		t.Errorf("MaxValidationTime() = %v; want 30ms", m.MaxValidationTime())
	}
	if m.AverageValidationTime() != 20*time.Millisecond {
		t.Errorf("AverageValidationTime() = %v; want 20ms", m.AverageValidationTime())
	}
}

func TestMetrics_Cache(t *testing.T) {
	m := NewMetrics()

	if m.CacheHitRate() != 0 {
		t.Errorf("CacheHitRate() = %v; want 0", m.CacheHitRate())
	}

	m.RecordCache(3, 1)

	if m.CacheHits() != 3 || m.CacheMisses() != 1 {
		t.Errorf("hits = %d, misses = %d; want 3, 1", m.CacheHits(), m.CacheMisses())
	}
	if m.CacheHitRate() != 0.75 {
		t.Errorf("CacheHitRate() = %v; want 0.75", m.CacheHitRate())
	}
}

func TestMetrics_RecordResult(t *testing.T) {
	m := NewMetrics()

	r := issue.NewResult()
	r.AddError(issue.CodeRequired, "PID-3 is required", "PID-3")
	r.AddWarning(issue.CodeStructure, "ZPI is not declared", "ZPI")
	r.AddInfo(issue.CodeInformational, "table 0300 unavailable", "MSH-3-1")
	r.AddIssue(issue.Issue{Severity: issue.SeverityFatal, Code: issue.CodeInvalid, Diagnostics: "unreadable"})

	m.RecordResult(r)
	m.RecordResult(nil)

	if m.ErrorsTotal() != 2 {
		t.Errorf("ErrorsTotal() = %d; want 2", m.ErrorsTotal())
	}
	if m.WarningsTotal() != 1 {
		t.Errorf("WarningsTotal() = %d; want 1", m.WarningsTotal())
	}
	if m.InfosTotal() != 1 {
		t.Errorf("InfosTotal() = %d; want 1", m.InfosTotal())
	}
}

func TestMetrics_Stage(t *testing.T) {
	m := NewMetrics()

	if _, ok := m.StageStats("parse"); ok {
		t.Error("StageStats should report an unknown stage")
	}

	m.RecordStage("parse", 10*time.Millisecond, 1)
	m.RecordStage("parse", 30*time.Millisecond, 2)
	m.RecordStage("message-rules", time.Millisecond, 0)

	stats, ok := m.StageStats("parse")
	if !ok {
		t.Fatal("StageStats(parse) not found")
	}
	if stats.Invocations != 2 {
		t.Errorf("Invocations = %d; want 2", stats.Invocations)
	}
	if stats.TotalTime != 40*time.Millisecond {
		t.Errorf("TotalTime = %v; want 40ms", stats.TotalTime)
	}
	if stats.AvgTime != 20*time.Millisecond {
		t.Errorf("AvgTime = %v; want 20ms", stats.AvgTime)
	}
	if stats.IssuesFound != 3 {
		t.Errorf("IssuesFound = %d; want 3", stats.IssuesFound)
	}

	if got := len(m.AllStageStats()); got != 2 {
		t.Errorf("len(AllStageStats()) = %d; want 2", got)
	}
}

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordParse(false)
	m.RecordValidation(10*time.Millisecond, true)
	m.RecordValidation(20*time.Millisecond, false)
	m.RecordCache(1, 1)
	m.RecordIssue(issue.SeverityError)
	m.RecordStage("parse", time.Millisecond, 0)

	s := m.Snapshot()

	if s.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if s.ParsesTotal != 1 {
		t.Errorf("ParsesTotal = %d; want 1", s.ParsesTotal)
	}
	if s.ValidationsTotal != 2 || s.ValidationsValid != 1 {
		t.Errorf("validations = %d/%d; want 1/2", s.ValidationsValid, s.ValidationsTotal)
	}
	if s.AvgValidationTimeNs != uint64(15*time.Millisecond) {
		t.Errorf("AvgValidationTimeNs = %d", s.AvgValidationTimeNs)
	}
	if s.MinValidationTimeNs != uint64(10*time.Millisecond) {
		t.Errorf("MinValidationTimeNs = %d", s.MinValidationTimeNs)
	}
	if s.CacheHitRate != 0.5 {
		t.Errorf("CacheHitRate = %v; want 0.5", s.CacheHitRate)
	}
	if s.ErrorsTotal != 1 {
		t.Errorf("ErrorsTotal = %d; want 1", s.ErrorsTotal)
	}
	if len(s.Stages) != 1 {
		t.Errorf("len(Stages) = %d; want 1", len(s.Stages))
	}
}

func TestMetrics_Export(t *testing.T) {
	m := NewMetrics()
	m.RecordValidation(time.Millisecond, true)

	export := m.Export()

	for _, key := range []string{"parses_total", "validations_total", "validation_rate", "cache_hit_rate", "errors_total"} {
		if _, ok := export[key]; !ok {
			t.Errorf("Export() missing key %q", key)
		}
	}
	if export["validations_total"] != uint64(1) {
		t.Errorf("validations_total = %v; want 1", export["validations_total"])
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()
	m.RecordParse(true)
	m.RecordValidation(time.Millisecond, true)
	m.RecordCache(2, 2)
	m.RecordIssue(issue.SeverityWarning)
	m.RecordStage("parse", time.Millisecond, 1)

	m.Reset()

	if m.ParsesTotal() != 0 || m.ParsesFailed() != 0 {
		t.Error("parse counts should be zero after Reset")
	}
	if m.ValidationsTotal() != 0 {
		t.Errorf("ValidationsTotal() after Reset = %d; want 0", m.ValidationsTotal())
	}
	if m.MinValidationTime() != 0 || m.MaxValidationTime() != 0 {
		t.Error("validation times should be zero after Reset")
	}
	if m.CacheHits() != 0 || m.WarningsTotal() != 0 {
		t.Error("cache and issue counts should be zero after Reset")
	}
	if len(m.AllStageStats()) != 0 {
		t.Errorf("len(AllStageStats()) after Reset = %d; want 0", len(m.AllStageStats()))
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	n := 100

	for i := 0; i < n; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			m.RecordValidation(time.Duration(i+1)*time.Microsecond, i%2 == 0)
		}(i)
		go func() {
			defer wg.Done()
			m.RecordCache(1, 0)
		}()
		go func() {
			defer wg.Done()
			m.RecordStage("parse", time.Microsecond, 1)
		}()
	}
	wg.Wait()

	if m.ValidationsTotal() != uint64(n) {
		t.Errorf("ValidationsTotal() = %d; want %d", m.ValidationsTotal(), n)
	}
	if m.MinValidationTime() != time.Microsecond {
		t.Errorf("MinValidationTime() = %v; want 1µs", m.MinValidationTime())
	}
	if m.MaxValidationTime() != time.Duration(n)*time.Microsecond {
		t.Errorf("MaxValidationTime() = %v", m.MaxValidationTime())
	}
	if m.CacheHits() != uint64(n) {
		t.Errorf("CacheHits() = %d; want %d", m.CacheHits(), n)
	}
	stats, _ := m.StageStats("parse")
	if stats.Invocations != uint64(n) {
		t.Errorf("stage invocations = %d; want %d", stats.Invocations, n)
	}
}

func BenchmarkMetrics_RecordValidation(b *testing.B) {
	m := NewMetrics()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordValidation(time.Millisecond, true)
	}
}

func BenchmarkMetrics_Snapshot(b *testing.B) {
	m := NewMetrics()
	m.RecordStage("parse", time.Millisecond, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}
}
