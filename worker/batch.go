package worker

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gofhir/hl7v2/pkg/issue"
)

// BatchProcessor runs a Processor over a slice of messages and keeps the
// results in input order.
type BatchProcessor struct {
	processor Processor
	workers   int
}

// NewBatchProcessor creates a batch processor with the given parallelism.
func NewBatchProcessor(processor Processor, workers int) *BatchProcessor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BatchProcessor{
		processor: processor,
		workers:   workers,
	}
}

// ProcessBatch processes every message. Results[i] belongs to messages[i];
// it is nil when the context was cancelled before the message ran.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, messages []string) *BatchResult {
	if len(messages) == 0 {
		return &BatchResult{Results: make([]*JobResult, 0)}
	}

	// Not worth the goroutines
	if len(messages) <= 2 || bp.workers == 1 {
		return bp.processSequential(ctx, messages)
	}

	return bp.processParallel(ctx, messages)
}

func (bp *BatchProcessor) processSequential(ctx context.Context, messages []string) *BatchResult {
	br := &BatchResult{
		Results:   make([]*JobResult, len(messages)),
		TotalJobs: len(messages),
	}

	for i, message := range messages {
		if ctx.Err() != nil {
			break
		}
		br.add(bp.run(ctx, i, message))
	}

	return br
}

func (bp *BatchProcessor) processParallel(ctx context.Context, messages []string) *BatchResult {
	numWorkers := bp.workers
	if numWorkers > len(messages) {
		numWorkers = len(messages)
	}

	jobs := make(chan int, len(messages))
	resultsChan := make(chan *JobResult, len(messages))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for index := range jobs {
				if ctx.Err() != nil {
					return
				}
				resultsChan <- bp.run(ctx, index, messages[index])
			}
		}()
	}

	for i := range messages {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	br := &BatchResult{
		Results:   make([]*JobResult, len(messages)),
		TotalJobs: len(messages),
	}
	for r := range resultsChan {
		br.add(r)
	}

	return br
}

func (bp *BatchProcessor) run(ctx context.Context, index int, message string) *JobResult {
	start := time.Now()
	r := &JobResult{ID: strconv.Itoa(index), Index: index}
	if bp.processor == nil {
		r.Error = ErrNoProcessor
	} else {
		r.Result, r.Error = bp.processor.Process(ctx, message)
	}
	r.Duration = time.Since(start).Nanoseconds()
	return r
}

func (br *BatchResult) add(r *JobResult) {
	br.Results[r.Index] = r
	br.CompletedJobs++
	br.TotalDuration += r.Duration
	if r.Error != nil {
		br.FailedJobs++
	}
}

// ProcessBatchSimple processes messages with one worker per CPU.
func ProcessBatchSimple(ctx context.Context, fn func(ctx context.Context, message string) (*issue.Result, error), messages []string) *BatchResult {
	return NewBatchProcessor(ProcessorFunc(fn), runtime.NumCPU()).ProcessBatch(ctx, messages)
}
