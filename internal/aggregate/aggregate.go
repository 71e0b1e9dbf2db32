// Package aggregate computes reliability statistics from the delivery ledger.
// It reads the ledger only — never the live providers — and has no side
// effects.
package aggregate

import (
	"context"
	"fmt"
	"sort"

	"github.com/relayhq/pushcore/internal/ledger"
)

// Stats is the windowed aggregate shape consumed by the analytics/dashboard
// collaborator.
type Stats struct {
	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Expired   int `json:"expired"`
	Pending   int `json:"pending"`

	// DeliveryRate is DELIVERED / (DELIVERED + FAILED + EXPIRED). Zero when
	// no record reached a terminal status.
	DeliveryRate float64 `json:"delivery_rate"`

	// Latency percentiles in milliseconds, computed over DELIVERED records
	// only. Zero when nothing was delivered.
	LatencyP50Ms int64 `json:"latency_p50_ms"`
	LatencyP95Ms int64 `json:"latency_p95_ms"`
	LatencyP99Ms int64 `json:"latency_p99_ms"`

	// FallbackRate is the fraction of DELIVERED and FAILED records that used
	// a non-primary transport (attempt_index > 0).
	FallbackRate float64 `json:"fallback_rate"`
}

// Service runs read-only aggregate queries over a ledger store.
type Service struct {
	store ledger.Store
}

// NewService creates the aggregator.
func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

// Query computes stats for the filter window. Empty result sets yield zero
// values, never errors.
func (s *Service) Query(ctx context.Context, f ledger.Filter) (*Stats, error) {
	records, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	return Compute(records), nil
}

// Compute aggregates a record set into Stats.
func Compute(records []ledger.Record) *Stats {
	stats := &Stats{Total: len(records)}

	var latencies []int64
	var settled, fellBack int

	for i := range records {
		rec := &records[i]
		switch rec.Status {
		case ledger.StatusDelivered:
			stats.Delivered++
			if rec.LatencyMs != nil {
				latencies = append(latencies, *rec.LatencyMs)
			}
		case ledger.StatusFailed:
			stats.Failed++
		case ledger.StatusExpired:
			stats.Expired++
		default:
			stats.Pending++
		}

		if rec.Status == ledger.StatusDelivered || rec.Status == ledger.StatusFailed {
			settled++
			if rec.AttemptIndex > 0 {
				fellBack++
			}
		}
	}

	if terminal := stats.Delivered + stats.Failed + stats.Expired; terminal > 0 {
		stats.DeliveryRate = float64(stats.Delivered) / float64(terminal)
	}
	if settled > 0 {
		stats.FallbackRate = float64(fellBack) / float64(settled)
	}

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		stats.LatencyP50Ms = percentile(latencies, 50)
		stats.LatencyP95Ms = percentile(latencies, 95)
		stats.LatencyP99Ms = percentile(latencies, 99)
	}

	return stats
}

// percentile takes the nearest-rank value from a sorted slice.
func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
