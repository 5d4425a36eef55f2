package worker

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofhir/hl7v2/pkg/issue"
)

// Processor handles one encoded message.
type Processor interface {
	Process(ctx context.Context, message string) (*issue.Result, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, message string) (*issue.Result, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, message string) (*issue.Result, error) {
	return f(ctx, message)
}

// Pool manages worker goroutines feeding a shared Processor.
type Pool struct {
	workers    int
	jobsChan   chan Job
	resultChan chan *JobResult
	processor  Processor
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closed     atomic.Bool

	jobsSubmitted atomic.Uint64
	jobsCompleted atomic.Uint64
	jobsFailed    atomic.Uint64
	totalDuration atomic.Uint64
}

// NewPool creates a pool with the given number of workers.
// If workers <= 0, it defaults to runtime.NumCPU().
func NewPool(processor Processor, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		workers:    workers,
		jobsChan:   make(chan Job, workers*2),
		resultChan: make(chan *JobResult, workers*2),
		processor:  processor,
		ctx:        ctx,
		cancel:     cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

// Submit queues a job, blocking while the queue is full.
// It returns false once the pool is closed.
func (p *Pool) Submit(job Job) bool {
	if p.closed.Load() {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobsChan <- job:
		p.jobsSubmitted.Add(1)
		return true
	}
}

// SubmitAsync queues a job without blocking.
// Returns false if the queue is full or the pool is closed.
func (p *Pool) SubmitAsync(job Job) bool {
	if p.closed.Load() {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobsChan <- job:
		p.jobsSubmitted.Add(1)
		return true
	default:
		return false
	}
}

// Results returns the channel of completed jobs.
func (p *Pool) Results() <-chan *JobResult {
	return p.resultChan
}

// Close stops the workers and discards pending results.
// Jobs still queued are dropped; read the expected results before closing.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}

	p.cancel()
	close(p.jobsChan)

	done := make(chan struct{})
	go func() {
		for range p.resultChan {
		}
		close(done)
	}()

	p.wg.Wait()
	close(p.resultChan)
	<-done
}

// CloseAndWait stops accepting jobs, lets queued jobs finish and returns
// their results in completion order.
func (p *Pool) CloseAndWait() *BatchResult {
	if p.closed.Swap(true) {
		return &BatchResult{}
	}

	close(p.jobsChan)

	go func() {
		p.wg.Wait()
		close(p.resultChan)
	}()

	results := make([]*JobResult, 0)
	var total int64
	for result := range p.resultChan {
		results = append(results, result)
		total += result.Duration
	}
	p.cancel()

	return &BatchResult{
		Results:       results,
		TotalJobs:     int(p.jobsSubmitted.Load()), //nolint:gosec // job counts fit int
		CompletedJobs: int(p.jobsCompleted.Load()), //nolint:gosec // job counts fit int
		FailedJobs:    int(p.jobsFailed.Load()),    //nolint:gosec // job counts fit int
		TotalDuration: total,
	}
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:       p.workers,
		JobsSubmitted: p.jobsSubmitted.Load(),
		JobsCompleted: p.jobsCompleted.Load(),
		JobsFailed:    p.jobsFailed.Load(),
		AvgDuration:   p.averageDuration(),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Workers       int
	JobsSubmitted uint64
	JobsCompleted uint64
	JobsFailed    uint64
	AvgDuration   time.Duration
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobsChan {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		result := p.processJob(job)
		p.jobsCompleted.Add(1)
		if result.Error != nil {
			p.jobsFailed.Add(1)
		}
		p.totalDuration.Add(uint64(result.Duration)) //nolint:gosec // durations are positive

		select {
		case <-p.ctx.Done():
			return
		case p.resultChan <- result:
		}
	}
}

func (p *Pool) processJob(job Job) *JobResult {
	start := time.Now()

	result := &JobResult{
		ID:    job.ID,
		Index: job.Index,
	}
	if result.ID == "" {
		result.ID = strconv.Itoa(job.Index)
	}

	if p.processor == nil {
		result.Error = ErrNoProcessor
	} else {
		result.Result, result.Error = p.processor.Process(p.ctx, job.Message)
	}

	result.Duration = time.Since(start).Nanoseconds()
	return result
}

func (p *Pool) averageDuration() time.Duration {
	completed := p.jobsCompleted.Load()
	if completed == 0 {
		return 0
	}
	return time.Duration(p.totalDuration.Load() / completed) //nolint:gosec // nanoseconds fit int64
}

// ErrNoProcessor is reported for jobs run by a pool without a processor.
var ErrNoProcessor = poolError("no processor configured")

type poolError string

func (e poolError) Error() string {
	return string(e)
}
