package hl7v2

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofhir/hl7v2/pkg/issue"
)

// Metrics tracks engine activity using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	// Operation counts
	parsesTotal      atomic.Uint64
	parsesFailed     atomic.Uint64
	encodesTotal     atomic.Uint64
	validationsTotal atomic.Uint64
	validationsValid atomic.Uint64

	// Validation timing (stored as nanoseconds)
	validationTimeTotal atomic.Uint64
	validationTimeMin   atomic.Uint64
	validationTimeMax   atomic.Uint64

	// Cache metrics
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	// Issue counts by severity
	errorsTotal   atomic.Uint64
	warningsTotal atomic.Uint64
	infosTotal    atomic.Uint64

	stageTiming sync.Map // map[string]*stageMetrics
}

// stageMetrics tracks one processing stage.
type stageMetrics struct {
	invocations atomic.Uint64
	totalTime   atomic.Uint64 // nanoseconds
	issuesFound atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	// the first recorded duration becomes the minimum
	m.validationTimeMin.Store(^uint64(0))
	return m
}

// --- Recording Methods ---

// RecordParse records a decode attempt.
func (m *Metrics) RecordParse(failed bool) {
	m.parsesTotal.Add(1)
	if failed {
		m.parsesFailed.Add(1)
	}
}

// RecordEncode records an encode.
func (m *Metrics) RecordEncode() {
	m.encodesTotal.Add(1)
}

// RecordValidation records a completed validation.
func (m *Metrics) RecordValidation(duration time.Duration, valid bool) {
	m.validationsTotal.Add(1)
	if valid {
		m.validationsValid.Add(1)
	}

	ns := uint64(duration.Nanoseconds()) //nolint:gosec // durations are positive
	m.validationTimeTotal.Add(ns)

	for {
		old := m.validationTimeMin.Load()
		if ns >= old || m.validationTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.validationTimeMax.Load()
		if ns <= old || m.validationTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordCache adds hits and misses reported by a cache.
func (m *Metrics) RecordCache(hits, misses uint64) {
	m.cacheHits.Add(hits)
	m.cacheMisses.Add(misses)
}

// RecordIssue records an issue based on severity.
func (m *Metrics) RecordIssue(severity issue.Severity) {
	switch severity {
	case issue.SeverityError, issue.SeverityFatal:
		m.errorsTotal.Add(1)
	case issue.SeverityWarning:
		m.warningsTotal.Add(1)
	case issue.SeverityInformation:
		m.infosTotal.Add(1)
	}
}

// RecordResult records every issue of r.
func (m *Metrics) RecordResult(r *issue.Result) {
	if r == nil {
		return
	}
	for _, is := range r.Issues {
		m.RecordIssue(is.Severity)
	}
}

// RecordStage records one run of a processing stage such as "parse" or
// "message-rules".
func (m *Metrics) RecordStage(name string, duration time.Duration, issuesFound int) {
	sm := m.stage(name)
	sm.invocations.Add(1)
	sm.totalTime.Add(uint64(duration.Nanoseconds())) //nolint:gosec // durations are positive
	sm.issuesFound.Add(uint64(issuesFound))          //nolint:gosec // counts are positive
}

func (m *Metrics) stage(name string) *stageMetrics {
	if v, ok := m.stageTiming.Load(name); ok {
		return v.(*stageMetrics)
	}
	sm := &stageMetrics{}
	actual, _ := m.stageTiming.LoadOrStore(name, sm)
	return actual.(*stageMetrics)
}

// --- Query Methods ---

// ParsesTotal returns the number of decode attempts.
func (m *Metrics) ParsesTotal() uint64 { return m.parsesTotal.Load() }

// ParsesFailed returns the number of decodes that returned an error.
func (m *Metrics) ParsesFailed() uint64 { return m.parsesFailed.Load() }

// EncodesTotal returns the number of encodes.
func (m *Metrics) EncodesTotal() uint64 { return m.encodesTotal.Load() }

// ValidationsTotal returns the total number of validations performed.
func (m *Metrics) ValidationsTotal() uint64 { return m.validationsTotal.Load() }

// ValidationsValid returns the number of validations without errors.
func (m *Metrics) ValidationsValid() uint64 { return m.validationsValid.Load() }

// ValidationRate returns the share of validations without errors (0.0 to 1.0).
func (m *Metrics) ValidationRate() float64 {
	total := m.validationsTotal.Load()
	if total == 0 {
		return 0
	}
	return float64(m.validationsValid.Load()) / float64(total)
}

// AverageValidationTime returns the average validation duration.
func (m *Metrics) AverageValidationTime() time.Duration {
	total := m.validationsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.validationTimeTotal.Load() / total) //nolint:gosec // nanoseconds fit int64
}

// MinValidationTime returns the minimum validation duration.
func (m *Metrics) MinValidationTime() time.Duration {
	v := m.validationTimeMin.Load()
	if v == ^uint64(0) {
		return 0
	}
	return time.Duration(v) //nolint:gosec // nanoseconds fit int64
}

// MaxValidationTime returns the maximum validation duration.
func (m *Metrics) MaxValidationTime() time.Duration {
	return time.Duration(m.validationTimeMax.Load()) //nolint:gosec // nanoseconds fit int64
}

// CacheHits returns the total cache hits.
func (m *Metrics) CacheHits() uint64 { return m.cacheHits.Load() }

// CacheMisses returns the total cache misses.
func (m *Metrics) CacheMisses() uint64 { return m.cacheMisses.Load() }

// CacheHitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// ErrorsTotal returns the total error issues found.
func (m *Metrics) ErrorsTotal() uint64 { return m.errorsTotal.Load() }

// WarningsTotal returns the total warning issues found.
func (m *Metrics) WarningsTotal() uint64 { return m.warningsTotal.Load() }

// InfosTotal returns the total informational issues found.
func (m *Metrics) InfosTotal() uint64 { return m.infosTotal.Load() }

// StageStats holds statistics for one processing stage.
type StageStats struct {
	Name        string        `json:"name"`
	Invocations uint64        `json:"invocations"`
	TotalTime   time.Duration `json:"total_time_ns"`
	AvgTime     time.Duration `json:"avg_time_ns"`
	IssuesFound uint64        `json:"issues_found"`
}

// StageStats returns statistics for the named stage.
func (m *Metrics) StageStats(name string) (StageStats, bool) {
	v, ok := m.stageTiming.Load(name)
	if !ok {
		return StageStats{Name: name}, false
	}
	return v.(*stageMetrics).stats(name), true
}

// AllStageStats returns statistics for all stages.
func (m *Metrics) AllStageStats() []StageStats {
	var stats []StageStats
	m.stageTiming.Range(func(key, value any) bool {
		stats = append(stats, value.(*stageMetrics).stats(key.(string)))
		return true
	})
	return stats
}

func (sm *stageMetrics) stats(name string) StageStats {
	invocations := sm.invocations.Load()
	total := sm.totalTime.Load()
	var avg time.Duration
	if invocations > 0 {
		avg = time.Duration(total / invocations) //nolint:gosec // nanoseconds fit int64
	}
	return StageStats{
		Name:        name,
		Invocations: invocations,
		TotalTime:   time.Duration(total), //nolint:gosec // nanoseconds fit int64
		AvgTime:     avg,
		IssuesFound: sm.issuesFound.Load(),
	}
}

// --- Export Methods ---

// Snapshot represents a point-in-time snapshot of all metrics.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	ParsesTotal      uint64  `json:"parses_total"`
	ParsesFailed     uint64  `json:"parses_failed"`
	EncodesTotal     uint64  `json:"encodes_total"`
	ValidationsTotal uint64  `json:"validations_total"`
	ValidationsValid uint64  `json:"validations_valid"`
	ValidationRate   float64 `json:"validation_rate"`

	AvgValidationTimeNs uint64 `json:"avg_validation_time_ns"`
	MinValidationTimeNs uint64 `json:"min_validation_time_ns"`
	MaxValidationTimeNs uint64 `json:"max_validation_time_ns"`

	CacheHits    uint64  `json:"cache_hits"`
	CacheMisses  uint64  `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`

	ErrorsTotal   uint64 `json:"errors_total"`
	WarningsTotal uint64 `json:"warnings_total"`
	InfosTotal    uint64 `json:"infos_total"`

	Stages []StageStats `json:"stages,omitempty"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	total := m.validationsTotal.Load()
	var avg uint64
	if total > 0 {
		avg = m.validationTimeTotal.Load() / total
	}
	return Snapshot{
		Timestamp:           time.Now(),
		ParsesTotal:         m.parsesTotal.Load(),
		ParsesFailed:        m.parsesFailed.Load(),
		EncodesTotal:        m.encodesTotal.Load(),
		ValidationsTotal:    total,
		ValidationsValid:    m.validationsValid.Load(),
		ValidationRate:      m.ValidationRate(),
		AvgValidationTimeNs: avg,
		MinValidationTimeNs: uint64(m.MinValidationTime()), //nolint:gosec // durations are positive
		MaxValidationTimeNs: m.validationTimeMax.Load(),
		CacheHits:           m.cacheHits.Load(),
		CacheMisses:         m.cacheMisses.Load(),
		CacheHitRate:        m.CacheHitRate(),
		ErrorsTotal:         m.errorsTotal.Load(),
		WarningsTotal:       m.warningsTotal.Load(),
		InfosTotal:          m.infosTotal.Load(),
		Stages:              m.AllStageStats(),
	}
}

// Export returns metrics as a flat map suitable for external systems.
func (m *Metrics) Export() map[string]any {
	s := m.Snapshot()
	return map[string]any{
		"parses_total":           s.ParsesTotal,
		"parses_failed":          s.ParsesFailed,
		"encodes_total":          s.EncodesTotal,
		"validations_total":      s.ValidationsTotal,
		"validations_valid":      s.ValidationsValid,
		"validation_rate":        s.ValidationRate,
		"avg_validation_time_ns": s.AvgValidationTimeNs,
		"min_validation_time_ns": s.MinValidationTimeNs,
		"max_validation_time_ns": s.MaxValidationTimeNs,
		"cache_hits":             s.CacheHits,
		"cache_misses":           s.CacheMisses,
		"cache_hit_rate":         s.CacheHitRate,
		"errors_total":           s.ErrorsTotal,
		"warnings_total":         s.WarningsTotal,
		"infos_total":            s.InfosTotal,
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.parsesTotal.Store(0)
	m.parsesFailed.Store(0)
	m.encodesTotal.Store(0)
	m.validationsTotal.Store(0)
	m.validationsValid.Store(0)
	m.validationTimeTotal.Store(0)
	m.validationTimeMin.Store(^uint64(0))
	m.validationTimeMax.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.errorsTotal.Store(0)
	m.warningsTotal.Store(0)
	m.infosTotal.Store(0)
	m.stageTiming.Range(func(key, _ any) bool {
		m.stageTiming.Delete(key)
		return true
	})
}
