package device

import (
	"context"
	"sync"

	"github.com/relayhq/pushcore/internal/push"
)

// MemoryStore is the in-process device store for dev mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	targets map[string]*push.DeviceTarget
}

// NewMemoryStore returns an empty in-memory device store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{targets: make(map[string]*push.DeviceTarget)}
}

func (s *MemoryStore) Get(ctx context.Context, deviceID string) (*push.DeviceTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.targets[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneTarget(target)
	return cp, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, target *push.DeviceTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.targets[target.DeviceID] = cloneTarget(target)
	return nil
}

func (s *MemoryStore) UpdateCapabilities(ctx context.Context, deviceID string, capabilities []push.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[deviceID]
	if !ok {
		return ErrNotFound
	}
	target.Capabilities = append([]push.Platform(nil), capabilities...)
	return nil
}

func (s *MemoryStore) DeactivateToken(ctx context.Context, deviceID string, platform push.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[deviceID]
	if !ok {
		return ErrNotFound
	}

	if target.Platform == platform {
		target.Token = ""
	}
	if target.Tokens != nil {
		delete(target.Tokens, platform)
	}

	kept := target.Capabilities[:0]
	for _, cap := range target.Capabilities {
		if cap != platform {
			kept = append(kept, cap)
		}
	}
	target.Capabilities = kept
	if len(target.Capabilities) == 0 {
		target.Active = false
	}
	return nil
}

func cloneTarget(t *push.DeviceTarget) *push.DeviceTarget {
	cp := *t
	cp.Capabilities = append([]push.Platform(nil), t.Capabilities...)
	if t.Tokens != nil {
		cp.Tokens = make(map[push.Platform]string, len(t.Tokens))
		for k, v := range t.Tokens {
			cp.Tokens[k] = v
		}
	}
	return &cp
}
