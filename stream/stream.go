package stream

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gofhir/hl7v2/pkg/codec"
	"github.com/gofhir/hl7v2/pkg/issue"
	"github.com/gofhir/hl7v2/worker"
)

// MessageResult is the outcome for one message of a stream.
type MessageResult struct {
	// Index is the position of the message in the stream; -1 for errors
	// reading the stream itself.
	Index int

	// Line is the input line of the message's MSH segment.
	Line int

	// ControlID and MessageType are read from MSH-10 and MSH-9.
	ControlID   string
	MessageType string

	Result *issue.Result

	// Error is set when the message could not be processed.
	Error error
}

// Processor runs a worker.Processor over every message of a stream.
type Processor struct {
	processor   worker.Processor
	bufferSize  int
	workerCount int
}

// NewProcessor creates a stream processor.
func NewProcessor(p worker.Processor) *Processor {
	return &Processor{
		processor:   p,
		bufferSize:  100,
		workerCount: 4,
	}
}

// WithBufferSize sets the result channel buffer size.
func (p *Processor) WithBufferSize(size int) *Processor {
	if size > 0 {
		p.bufferSize = size
	}
	return p
}

// WithWorkerCount sets the number of parallel workers.
func (p *Processor) WithWorkerCount(count int) *Processor {
	if count > 0 {
		p.workerCount = count
	}
	return p
}

// Process handles messages one at a time as they are read. Results are
// emitted in input order and the channel is closed at the end of input.
func (p *Processor) Process(ctx context.Context, r io.Reader) <-chan *MessageResult {
	results := make(chan *MessageResult, p.bufferSize)

	go func() {
		defer close(results)

		sc := NewScanner(r)
		for sc.Scan() {
			if err := ctx.Err(); err != nil {
				results <- &MessageResult{Index: -1, Error: err}
				return
			}
			m := sc.Message()
			res := describe(m)
			res.Result, res.Error = p.processor.Process(ctx, m.Text)
			results <- res
		}
		if err := sc.Err(); err != nil {
			results <- &MessageResult{Index: -1, Error: fmt.Errorf("failed to read stream: %w", err)}
		}
	}()

	return results
}

// ProcessParallel handles messages on a worker pool while preserving input
// order in the output.
func (p *Processor) ProcessParallel(ctx context.Context, r io.Reader) <-chan *MessageResult {
	results := make(chan *MessageResult, p.bufferSize)

	go func() {
		defer close(results)

		pool := worker.NewPool(p.processor, p.workerCount)

		type feedEnd struct {
			total int
			err   error
		}

		var mu sync.Mutex
		messages := make(map[int]Message)
		end := make(chan feedEnd, 1)

		go func() {
			sc := NewScanner(r)
			n := 0
			for sc.Scan() && ctx.Err() == nil {
				m := sc.Message()
				mu.Lock()
				messages[m.Index] = m
				mu.Unlock()
				if !pool.Submit(worker.Job{Index: m.Index, Message: m.Text}) {
					break
				}
				n++
			}
			end <- feedEnd{total: n, err: sc.Err()}
		}()

		pending := make(map[int]*worker.JobResult)
		next, total := 0, -1
		var readErr error
		feed := end

		for total < 0 || next < total {
			select {
			case e := <-feed:
				total, readErr, feed = e.total, e.err, nil
			case jr := <-pool.Results():
				pending[jr.Index] = jr
				for {
					jr, ok := pending[next]
					if !ok {
						break
					}
					delete(pending, next)
					mu.Lock()
					m := messages[next]
					delete(messages, next)
					mu.Unlock()

					res := describe(m)
					res.Result, res.Error = jr.Result, jr.Error
					results <- res
					next++
				}
			case <-ctx.Done():
				results <- &MessageResult{Index: -1, Error: ctx.Err()}
				// Keep workers unblocked until the feeder stops submitting.
				go func() {
					for range pool.Results() {
					}
				}()
				if feed != nil {
					<-feed
				}
				pool.Close()
				return
			}
		}

		pool.Close()
		if err := ctx.Err(); err != nil {
			results <- &MessageResult{Index: -1, Error: err}
		}
		if readErr != nil {
			results <- &MessageResult{Index: -1, Error: fmt.Errorf("failed to read stream: %w", readErr)}
		}
	}()

	return results
}

// describe fills the result fields known before processing.
func describe(m Message) *MessageResult {
	res := &MessageResult{Index: m.Index, Line: m.Line}
	if h, err := codec.PreParse(m.Text); err == nil {
		res.ControlID = h.ControlID
		res.MessageType = h.Type()
	}
	return res
}

// StreamResult aggregates the results of a stream.
type StreamResult struct {
	// TotalMessages is the number of messages read.
	TotalMessages int

	// MessagesWithErrors counts messages with error issues or a processing
	// error.
	MessagesWithErrors int

	// MessagesWithWarnings counts messages with warnings but no errors.
	MessagesWithWarnings int

	// TotalIssues is the number of issues over all messages.
	TotalIssues int

	// ProcessingErrors are errors that stopped a message or the stream.
	ProcessingErrors []error

	// Issues holds the issues of each message by index.
	Issues map[int][]issue.Issue
}

// Aggregate drains results and summarizes them.
func Aggregate(results <-chan *MessageResult) *StreamResult {
	agg := &StreamResult{
		Issues: make(map[int][]issue.Issue),
	}

	for result := range results {
		if result.Index >= 0 {
			agg.TotalMessages++
		}
		if result.Error != nil {
			agg.ProcessingErrors = append(agg.ProcessingErrors, result.Error)
			if result.Index >= 0 {
				agg.MessagesWithErrors++
			}
			continue
		}
		if result.Result == nil || len(result.Result.Issues) == 0 {
			continue
		}

		issues := result.Result.Issues
		agg.Issues[result.Index] = issues
		agg.TotalIssues += len(issues)

		switch {
		case result.Result.HasErrors():
			agg.MessagesWithErrors++
		case result.Result.WarningCount() > 0:
			agg.MessagesWithWarnings++
		}
	}

	return agg
}

// HasErrors returns true if any message had errors or the stream failed.
func (r *StreamResult) HasErrors() bool {
	return r.MessagesWithErrors > 0 || len(r.ProcessingErrors) > 0
}

// Summary returns a one-line summary.
func (r *StreamResult) Summary() string {
	return fmt.Sprintf(
		"Processed %d messages: %d with errors, %d with warnings, %d total issues",
		r.TotalMessages,
		r.MessagesWithErrors,
		r.MessagesWithWarnings,
		r.TotalIssues,
	)
}
