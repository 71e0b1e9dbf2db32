package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Fanout runs send over every bulk item concurrently, bounded by limit, and
// joins all results before returning. Each attempt gets its own timeout so a
// hung target cannot block the others; the slot for outcome i always matches
// items[i].
//
// Shared by the adapters to implement SendBulk with one concurrency
// discipline: attempt everything, never fail the batch.
func Fanout(
	ctx context.Context,
	limit int64,
	timeout time.Duration,
	items []BulkItem,
	send func(ctx context.Context, item BulkItem) Outcome,
) []Outcome {
	if limit <= 0 {
		limit = DefaultBulkConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	outcomes := make([]Outcome, len(items))
	sem := semaphore.NewWeighted(limit)
	var wg sync.WaitGroup

	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Caller cancelled the batch: everything not yet attempted is
			// reported, not silently dropped.
			outcomes[i] = Outcome{
				ErrorCode:    ErrorServiceUnavailable,
				ErrorMessage: "bulk send cancelled before attempt: " + err.Error(),
			}
			continue
		}

		wg.Add(1)
		go func(i int, item BulkItem) {
			defer wg.Done()
			defer sem.Release(1)

			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			outcomes[i] = send(attemptCtx, item)
		}(i, item)
	}

	wg.Wait()
	return outcomes
}
