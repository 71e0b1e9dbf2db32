package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when no DATABASE_URL is configured
// and as the substrate for concurrency tests. Same conditional-transition
// semantics as the Postgres store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.MessageID]; exists {
		return fmt.Errorf("duplicate message id %s", rec.MessageID)
	}
	cp := *rec
	s.records[rec.MessageID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, messageID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) MarkDelivered(ctx context.Context, messageID string, receivedAt time.Time, latencyMs int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[messageID]
	if !ok {
		return false, ErrNotFound
	}
	if rec.Status != StatusSent {
		return false, nil
	}
	rec.Status = StatusDelivered
	rec.ReceivedAt = &receivedAt
	rec.LatencyMs = &latencyMs
	return true, nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, messageID, errorCode, errorMessage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[messageID]
	if !ok {
		return false, ErrNotFound
	}
	if rec.Status != StatusSent {
		return false, nil
	}
	rec.Status = StatusFailed
	rec.ErrorCode = errorCode
	rec.ErrorMessage = errorMessage
	return true, nil
}

func (s *MemoryStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.records {
		if rec.Status == StatusSent && rec.ExpiresAt().Before(now) {
			rec.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if f.Matches(rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SentAt.After(out[j].SentAt)
	})
	return out, nil
}
