package provider

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayhq/pushcore/internal/push"
)

func bulkItems(n int) []BulkItem {
	items := make([]BulkItem, n)
	for i := range items {
		items[i] = BulkItem{
			Target:  push.DeviceTarget{DeviceID: "dev-" + strconv.Itoa(i), Token: "tok-" + strconv.Itoa(i)},
			Payload: &push.Payload{Title: "t"},
		}
	}
	return items
}

func TestFanoutSlowTargetDoesNotSerializeBatch(t *testing.T) {
	items := bulkItems(5)
	slow := items[2].Target.DeviceID
	delay := 150 * time.Millisecond

	start := time.Now()
	outcomes := Fanout(context.Background(), 8, time.Second, items, func(ctx context.Context, item BulkItem) Outcome {
		if item.Target.DeviceID == slow {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Outcome{ErrorCode: ErrorServiceUnavailable}
			}
		}
		return Outcome{Success: true, ProviderMessageID: item.Target.DeviceID}
	})
	elapsed := time.Since(start)

	require.Len(t, outcomes, 5)
	for i, out := range outcomes {
		assert.True(t, out.Success, "item %d", i)
		// Slot order matches input order even though completion order differs.
		assert.Equal(t, items[i].Target.DeviceID, out.ProviderMessageID)
	}
	// One slow target costs one delay, not five.
	assert.Less(t, elapsed, 3*delay)
}

func TestFanoutBoundsConcurrency(t *testing.T) {
	var mu sync.Mutex
	inflight, peak := 0, 0

	Fanout(context.Background(), 2, time.Second, bulkItems(10), func(ctx context.Context, item BulkItem) Outcome {
		mu.Lock()
		inflight++
		if inflight > peak {
			peak = inflight
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inflight--
		mu.Unlock()
		return Outcome{Success: true}
	})

	assert.LessOrEqual(t, peak, 2)
	assert.GreaterOrEqual(t, peak, 1)
}

func TestFanoutPerAttemptTimeout(t *testing.T) {
	outcomes := Fanout(context.Background(), 4, 20*time.Millisecond, bulkItems(1), func(ctx context.Context, item BulkItem) Outcome {
		<-ctx.Done()
		return Outcome{ErrorCode: OutcomeFromContextErr(ctx.Err()), ErrorMessage: ctx.Err().Error()}
	})

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, ErrorServiceUnavailable, outcomes[0].ErrorCode)
}

func TestFanoutCancelledBatchReportsEveryItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := Fanout(ctx, 2, time.Second, bulkItems(3), func(ctx context.Context, item BulkItem) Outcome {
		return Outcome{Success: true}
	})

	require.Len(t, outcomes, 3)
	for _, out := range outcomes {
		assert.Equal(t, ErrorServiceUnavailable, out.ErrorCode)
	}
}
