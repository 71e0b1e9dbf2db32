package provider

import (
	"fmt"
	"sync"

	"github.com/relayhq/pushcore/internal/push"
)

var (
	// ErrAlreadyRegistered is returned when a platform key is registered
	// twice without an explicit Unregister. This prevents silent provider
	// shadowing.
	ErrAlreadyRegistered = fmt.Errorf("provider already registered")

	// ErrUnknownPlatform is returned by Resolve for an absent key.
	ErrUnknownPlatform = fmt.Errorf("unknown platform")
)

// Registry maps a platform identifier to a live, initialized provider. It is
// constructed once at process start and injected into the routing engine —
// never a hidden singleton — so tests can run isolated instances.
//
// The write path is effectively single-writer-at-startup; after wiring, reads
// dominate and take only the read lock.
type Registry struct {
	mu        sync.RWMutex
	providers map[push.Platform]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[push.Platform]Provider)}
}

// Register binds a provider to its platform key. Write-once per key.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	platform := p.Platform()
	if _, exists := r.providers[platform]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, platform)
	}
	r.providers[platform] = p
	return nil
}

// Unregister removes a platform binding so it can be re-registered (token
// rotation, config reload). Removing an absent key is a no-op.
func (r *Registry) Unregister(platform push.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, platform)
}

// Resolve returns the provider bound to platform.
func (r *Registry) Resolve(platform push.Platform) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	return p, nil
}

// Platforms returns the registered platform keys in no particular order.
func (r *Registry) Platforms() []push.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]push.Platform, 0, len(r.providers))
	for platform := range r.providers {
		out = append(out, platform)
	}
	return out
}
