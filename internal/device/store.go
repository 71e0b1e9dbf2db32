// Package device holds the delivery engine's view of registered devices:
// transport tokens and ordered reachability capabilities. The wider device
// data model lives with the external device registry; this store keeps only
// what routing needs.
package device

import (
	"context"
	"errors"

	"github.com/relayhq/pushcore/internal/push"
)

// ErrNotFound is returned for an unknown device id.
var ErrNotFound = errors.New("device not found")

// Store is the persistence contract for device targets.
type Store interface {
	Get(ctx context.Context, deviceID string) (*push.DeviceTarget, error)

	// Upsert creates or replaces a target (registration, token rotation).
	Upsert(ctx context.Context, target *push.DeviceTarget) error

	// UpdateCapabilities replaces the ordered platform preference list.
	// In-flight delivery records are unaffected.
	UpdateCapabilities(ctx context.Context, deviceID string, capabilities []push.Platform) error

	// DeactivateToken drops the token for one platform after the provider
	// reported it expired, removing the platform from the candidate order.
	DeactivateToken(ctx context.Context, deviceID string, platform push.Platform) error
}
