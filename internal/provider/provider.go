// Package provider defines the uniform contract every transport adapter
// implements, the normalized failure taxonomy, and the process-wide registry
// the routing engine resolves adapters from.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/relayhq/pushcore/internal/push"
)

// ErrorCode is the normalized failure taxonomy. Every adapter maps its
// transport's native error vocabulary onto these values so the routing engine
// can apply one retry/fallback policy across heterogeneous transports.
type ErrorCode string

const (
	ErrorNone ErrorCode = ""
	// ErrorInvalidTarget means the address is malformed for this transport.
	ErrorInvalidTarget ErrorCode = "INVALID_TARGET"
	// ErrorTargetExpired means the token/channel is no longer valid and the
	// target should be deactivated.
	ErrorTargetExpired ErrorCode = "TARGET_EXPIRED"
	ErrorPayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrorUnauthorized    ErrorCode = "UNAUTHORIZED"
	// ErrorThrottled carries RetryAfterSeconds; it signals provider capacity,
	// not device unreachability, and must not trigger cross-provider fallback.
	ErrorThrottled          ErrorCode = "THROTTLED"
	ErrorServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorUnknown            ErrorCode = "UNKNOWN"
)

// Outcome is the result of a single send attempt.
type Outcome struct {
	Success           bool      `json:"success"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ErrorCode         ErrorCode `json:"error_code,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
}

// Health reports the result of a provider health probe.
type Health struct {
	Status string `json:"status"` // "ok" or "down"
	Detail string `json:"detail,omitempty"`
}

// BulkItem pairs one target with one payload for SendBulk.
type BulkItem struct {
	Target  push.DeviceTarget
	Payload *push.Payload
}

// Provider is the uniform adapter contract for one transport technology.
//
// Send and SendBulk may perform network I/O and must not retry internally:
// retry and fallback policy belongs to the routing engine so cross-provider
// behavior stays centrally controlled. SendBulk attempts every item even when
// some fail; partial success is expected, not exceptional.
type Provider interface {
	// Platform returns the identifier this provider is registered under.
	Platform() push.Platform

	// Initialize acquires credentials/connections. Retried by the caller.
	Initialize(ctx context.Context) error

	Send(ctx context.Context, target push.DeviceTarget, payload *push.Payload) Outcome
	SendBulk(ctx context.Context, items []BulkItem) []Outcome

	// ValidateToken is a pure format check, no network call.
	ValidateToken(token string) bool

	HealthCheck(ctx context.Context) Health

	// MaxPayloadBytes is the transport's declared payload limit, checked by
	// the routing engine before a record is committed.
	MaxPayloadBytes() int
}

const (
	// DefaultSendTimeout bounds one provider call; a timed-out attempt is
	// reported as SERVICE_UNAVAILABLE.
	DefaultSendTimeout = 20 * time.Second

	// DefaultBulkConcurrency bounds SendBulk fan-out per provider.
	DefaultBulkConcurrency = 16
)

// OutcomeFromContextErr normalizes a context cancellation or deadline into the
// taxonomy. Returns ErrorNone when err is nil or not a context error.
func OutcomeFromContextErr(err error) ErrorCode {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorServiceUnavailable
	}
	return ErrorNone
}
