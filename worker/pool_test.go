package worker

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofhir/hl7v2/pkg/issue"
)

var errEmpty = errors.New("empty message")

// mockProcessor reports one error issue for messages containing "BAD" and
// fails on empty messages.
type mockProcessor struct {
	callCount atomic.Int32
	delay     time.Duration
}

func (m *mockProcessor) Process(ctx context.Context, message string) (*issue.Result, error) {
	m.callCount.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if message == "" {
		return nil, errEmpty
	}
	r := issue.NewResult()
	if strings.Contains(message, "BAD") {
		r.AddError(issue.CodeValue, "bad value", "PID-3")
	}
	return r, nil
}

func TestPool_NewPool(t *testing.T) {
	pool := NewPool(&mockProcessor{}, 2)
	defer pool.Close()

	if pool.workers != 2 {
		t.Errorf("workers = %d; want 2", pool.workers)
	}
}

func TestPool_DefaultWorkers(t *testing.T) {
	pool := NewPool(&mockProcessor{}, 0)
	defer pool.Close()

	if pool.workers <= 0 {
		t.Errorf("workers = %d; want > 0", pool.workers)
	}
}

func TestPool_SubmitAndReceive(t *testing.T) {
	pool := NewPool(&mockProcessor{}, 2)
	defer pool.Close()

	if !pool.Submit(Job{ID: "msg-1", Message: "MSH|BAD"}) {
		t.Fatal("expected job to be submitted")
	}

	select {
	case result := <-pool.Results():
		if result.ID != "msg-1" {
			t.Errorf("ID = %q; want %q", result.ID, "msg-1")
		}
		if result.Result == nil || result.Result.ErrorCount() != 1 {
			t.Errorf("Result = %+v; want one error", result.Result)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for result")
	}
}

func TestPool_DefaultID(t *testing.T) {
	pool := NewPool(&mockProcessor{}, 1)
	defer pool.Close()

	pool.Submit(Job{Index: 7, Message: "MSH"})

	select {
	case result := <-pool.Results():
		if result.ID != "7" || result.Index != 7 {
			t.Errorf("ID, Index = %q, %d; want 7, 7", result.ID, result.Index)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for result")
	}
}

func TestPool_SubmitToClosedPool(t *testing.T) {
	pool := NewPool(&mockProcessor{}, 2)
	pool.Close()

	if pool.Submit(Job{ID: "after-close"}) {
		t.Error("expected submit to fail after close")
	}
	if pool.SubmitAsync(Job{ID: "after-close"}) {
		t.Error("expected async submit to fail after close")
	}
}

func TestPool_DoubleClose(t *testing.T) {
	pool := NewPool(&mockProcessor{}, 2)

	pool.Close()
	pool.Close() // must not panic
}

func TestPool_NilProcessor(t *testing.T) {
	pool := NewPool(nil, 2)
	defer pool.Close()

	pool.Submit(Job{ID: "nil-processor"})

	select {
	case result := <-pool.Results():
		if !errors.Is(result.Error, ErrNoProcessor) {
			t.Errorf("Error = %v; want ErrNoProcessor", result.Error)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for result")
	}
}

func TestPool_CloseAndWait(t *testing.T) {
	pool := NewPool(&mockProcessor{delay: time.Millisecond}, 2)

	messages := []string{"MSH", "MSH|BAD", "", "MSH"}
	for i, m := range messages {
		pool.Submit(Job{Index: i, Message: m})
	}

	br := pool.CloseAndWait()
	if len(br.Results) != len(messages) {
		t.Fatalf("len(Results) = %d; want %d", len(br.Results), len(messages))
	}
	if br.TotalJobs != 4 || br.CompletedJobs != 4 {
		t.Errorf("TotalJobs, CompletedJobs = %d, %d; want 4, 4", br.TotalJobs, br.CompletedJobs)
	}
	if br.FailedJobs != 1 {
		t.Errorf("FailedJobs = %d; want 1", br.FailedJobs)
	}
	if br.ErrorCount() != 1 {
		t.Errorf("ErrorCount() = %d; want 1", br.ErrorCount())
	}
	if second := pool.CloseAndWait(); len(second.Results) != 0 {
		t.Error("second CloseAndWait should return an empty batch")
	}
}

func TestPool_Stats(t *testing.T) {
	pool := NewPool(&mockProcessor{}, 2)
	defer pool.Close()

	pool.Submit(Job{ID: "stats-test", Message: ""})

	select {
	case <-pool.Results():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for result")
	}

	stats := pool.Stats()
	if stats.Workers != 2 {
		t.Errorf("Workers = %d; want 2", stats.Workers)
	}
	if stats.JobsSubmitted != 1 || stats.JobsCompleted != 1 || stats.JobsFailed != 1 {
		t.Errorf("Stats = %+v; want 1 submitted, completed and failed", stats)
	}
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	bp := NewBatchProcessor(&mockProcessor{}, 2)

	result := bp.ProcessBatch(context.Background(), nil)
	if result.TotalJobs != 0 || len(result.Results) != 0 {
		t.Errorf("TotalJobs = %d; want 0", result.TotalJobs)
	}
}

func TestBatchProcessor_SmallBatch(t *testing.T) {
	p := &mockProcessor{}
	bp := NewBatchProcessor(p, 2)

	result := bp.ProcessBatch(context.Background(), []string{"MSH|BAD", "MSH"})
	if result.TotalJobs != 2 || result.CompletedJobs != 2 {
		t.Errorf("TotalJobs, CompletedJobs = %d, %d; want 2, 2", result.TotalJobs, result.CompletedJobs)
	}
	if p.callCount.Load() != 2 {
		t.Errorf("callCount = %d; want 2", p.callCount.Load())
	}
	if result.Results[0].Result.ErrorCount() != 1 || result.Results[1].Result.ErrorCount() != 0 {
		t.Error("results should be in input order")
	}
}

func TestBatchProcessor_ParallelKeepsOrder(t *testing.T) {
	p := &mockProcessor{delay: 10 * time.Millisecond}
	bp := NewBatchProcessor(p, 4)

	messages := make([]string, 10)
	for i := range messages {
		messages[i] = "MSH"
	}
	messages[3] = "MSH|BAD"
	messages[8] = ""

	start := time.Now()
	result := bp.ProcessBatch(context.Background(), messages)
	duration := time.Since(start)

	if result.CompletedJobs != 10 {
		t.Errorf("CompletedJobs = %d; want 10", result.CompletedJobs)
	}
	for i, r := range result.Results {
		if r.Index != i || r.ID != strconv.Itoa(i) {
			t.Errorf("Results[%d] has index %d, ID %q", i, r.Index, r.ID)
		}
	}
	if result.Results[3].Result.ErrorCount() != 1 {
		t.Error("Results[3] should carry the error issue")
	}
	if !errors.Is(result.Results[8].Error, errEmpty) || result.FailedJobs != 1 {
		t.Errorf("Results[8].Error = %v, FailedJobs = %d", result.Results[8].Error, result.FailedJobs)
	}
	if !result.HasErrors() {
		t.Error("HasErrors() = false; want true")
	}

	// 10 jobs of 10ms on 4 workers
	if duration > 200*time.Millisecond {
		t.Errorf("duration = %v; expected < 200ms for parallel execution", duration)
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &mockProcessor{}
	result := NewBatchProcessor(p, 4).ProcessBatch(ctx, []string{"MSH", "MSH", "MSH", "MSH"})
	if result.CompletedJobs != 0 {
		t.Errorf("CompletedJobs = %d; want 0", result.CompletedJobs)
	}
	if len(result.Results) != 4 || result.Results[0] != nil {
		t.Error("skipped messages should leave nil results")
	}
}

func TestBatchResult_HasErrors(t *testing.T) {
	t.Run("nil result", func(t *testing.T) {
		br := &BatchResult{Results: []*JobResult{{ID: "1"}, nil}}
		if br.HasErrors() {
			t.Error("expected HasErrors() = false for nil result")
		}
	})

	t.Run("with error", func(t *testing.T) {
		br := &BatchResult{Results: []*JobResult{{ID: "1", Error: ErrNoProcessor}}}
		if !br.HasErrors() {
			t.Error("expected HasErrors() = true when error present")
		}
	})
}

func TestProcessBatchSimple(t *testing.T) {
	var callCount atomic.Int32
	fn := func(ctx context.Context, message string) (*issue.Result, error) {
		callCount.Add(1)
		return issue.NewResult(), nil
	}

	result := ProcessBatchSimple(context.Background(), fn, []string{"MSH", "MSH", "MSH"})
	if result.TotalJobs != 3 {
		t.Errorf("TotalJobs = %d; want 3", result.TotalJobs)
	}
	if callCount.Load() != 3 {
		t.Errorf("callCount = %d; want 3", callCount.Load())
	}
}
