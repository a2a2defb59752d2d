// Package batch executes collections of jobs under a fixed concurrency
// ceiling with per-item retry and progress reporting.
//
// Items are dispatched in windows no larger than the configured
// concurrency; each window is awaited before the next starts, which
// bounds peak load on downstream services deterministically. A batch
// never fails wholesale: every item resolves to its own Result, so
// partial success is the normal outcome.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"walletflow/internal/retry"
)

// Result is the outcome of one item in a batch.
type Result[T, R any] struct {
	Item     T
	Value    R
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// Progress is invoked after every item completes, successfully or not.
type Progress func(done, total int, label string)

// Options configures a single batch run.
type Options[T any] struct {
	// Concurrency is the maximum number of in-flight items.
	Concurrency int
	// Retry is the per-item retry schedule.
	Retry retry.Policy
	// OnProgress, if set, is called after each item completes.
	OnProgress Progress
	// Timeout, if positive, races the whole batch against a deadline.
	// Items not started when it elapses resolve with the deadline
	// error; results already produced are kept.
	Timeout time.Duration
	// Label renders an item for progress reporting and logs.
	Label func(T) string
}

// Totals is a snapshot of processor-lifetime counters.
type Totals struct {
	Processed  uint64        `json:"processed"`
	Succeeded  uint64        `json:"succeeded"`
	Failed     uint64        `json:"failed"`
	AvgLatency time.Duration `json:"avgLatency"`
}

// Processor runs batches and accumulates totals across them.
type Processor struct {
	logger zerolog.Logger

	mu           sync.Mutex
	processed    uint64
	succeeded    uint64
	failed       uint64
	totalLatency time.Duration
}

// NewProcessor creates a Processor.
func NewProcessor(logger zerolog.Logger) *Processor {
	return &Processor{logger: logger}
}

// Totals returns the lifetime counters.
func (p *Processor) Totals() Totals {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := Totals{Processed: p.processed, Succeeded: p.succeeded, Failed: p.failed}
	if p.processed > 0 {
		t.AvgLatency = p.totalLatency / time.Duration(p.processed)
	}
	return t
}

func (p *Processor) record(ok bool, elapsed time.Duration) {
	p.mu.Lock()
	p.processed++
	if ok {
		p.succeeded++
	} else {
		p.failed++
	}
	p.totalLatency += elapsed
	p.mu.Unlock()
}

// Process runs worker over items with at most opts.Concurrency in
// flight. The returned slice is index-aligned to items regardless of
// completion order and always has exactly len(items) entries.
func Process[T, R any](ctx context.Context, p *Processor, items []T, worker func(context.Context, T) (R, error), opts Options[T]) []Result[T, R] {
	results := make([]Result[T, R], len(items))
	if len(items) == 0 {
		return results
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	label := opts.Label
	if label == nil {
		label = func(T) string { return "" }
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var done int
	var progressMu sync.Mutex
	report := func(i int) {
		progressMu.Lock()
		done++
		n := done
		progressMu.Unlock()
		if opts.OnProgress != nil {
			opts.OnProgress(n, len(items), label(items[i]))
		}
	}

	for start := 0; start < len(items); start += concurrency {
		end := start + concurrency
		if end > len(items) {
			end = len(items)
		}

		// The whole remaining batch degrades lossily once the
		// deadline passes; items never dispatched still get a result.
		if ctx.Err() != nil {
			for i := start; i < len(items); i++ {
				results[i] = Result[T, R]{Item: items[i], Err: ctx.Err()}
				report(i)
			}
			p.logger.Warn().
				Int("remaining", len(items)-start).
				Int("total", len(items)).
				Msg("batch deadline elapsed, returning partial results")
			return results
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = runOne(ctx, p, items[i], worker, opts.Retry)
				report(i)
			}(i)
		}
		wg.Wait()
	}
	return results
}

// runOne executes a single item under the retry policy and records it
// in the processor totals.
func runOne[T, R any](ctx context.Context, p *Processor, item T, worker func(context.Context, T) (R, error), policy retry.Policy) Result[T, R] {
	started := time.Now()
	attempts := 0
	value, err := retry.Do(ctx, policy, func(ctx context.Context) (R, error) {
		attempts++
		return worker(ctx, item)
	})
	elapsed := time.Since(started)

	p.record(err == nil, elapsed)

	return Result[T, R]{
		Item:     item,
		Value:    value,
		Err:      err,
		Attempts: attempts,
		Elapsed:  elapsed,
	}
}
