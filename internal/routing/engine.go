// Package routing selects a transport per device and orchestrates the
// attempt sequence, including automatic fallback for devices that cannot
// reach their primary transport.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relayhq/pushcore/internal/device"
	"github.com/relayhq/pushcore/internal/ledger"
	"github.com/relayhq/pushcore/internal/logger"
	"github.com/relayhq/pushcore/internal/metrics"
	"github.com/relayhq/pushcore/internal/provider"
	"github.com/relayhq/pushcore/internal/push"
)

// ErrUnknownDevice is returned when the device id has no registered target.
var ErrUnknownDevice = fmt.Errorf("unknown device")

// ErrDeviceInactive is returned when the target has no usable capabilities.
var ErrDeviceInactive = fmt.Errorf("device inactive")

// Result is a successful dispatch.
type Result struct {
	MessageID    string        `json:"message_id"`
	Provider     push.Platform `json:"provider"`
	Status       ledger.Status `json:"status"`
	AttemptIndex int           `json:"attempt_index"`
}

// CandidateError is one candidate's normalized failure within a dispatch.
type CandidateError struct {
	Provider push.Platform      `json:"provider"`
	Code     provider.ErrorCode `json:"code"`
	Message  string             `json:"message,omitempty"`
}

// DispatchError aggregates the per-candidate failures of one dispatch. Code
// is the failure class the caller should act on: THROTTLED carries
// RetryAfterSeconds for caller-driven backoff, PAYLOAD_TOO_LARGE means no
// candidate could ever take this payload.
type DispatchError struct {
	Code              provider.ErrorCode `json:"code"`
	RetryAfterSeconds int                `json:"retry_after_seconds,omitempty"`
	Attempts          []CandidateError   `json:"attempts,omitempty"`
}

func (e *DispatchError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("dispatch failed: %s", e.Code)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Provider, a.Code))
	}
	return fmt.Sprintf("dispatch failed: %s (%s)", e.Code, strings.Join(parts, "; "))
}

// Engine routes payloads to providers and records every attempt.
type Engine struct {
	registry    *provider.Registry
	ledger      *ledger.Service
	devices     device.Store
	logger      *logger.Logger
	sendTimeout time.Duration
}

// NewEngine wires the routing engine. sendTimeout bounds each provider call;
// zero selects the default.
func NewEngine(
	registry *provider.Registry,
	ledgerService *ledger.Service,
	devices device.Store,
	log *logger.Logger,
	sendTimeout time.Duration,
) *Engine {
	if sendTimeout <= 0 {
		sendTimeout = provider.DefaultSendTimeout
	}
	return &Engine{
		registry:    registry,
		ledger:      ledgerService,
		devices:     devices,
		logger:      log.WithComponent("routing"),
		sendTimeout: sendTimeout,
	}
}

// Dispatch routes one payload to one device.
//
// Candidates are tried in the device's declared capability order. Fallback
// advances only on unreachability-class failures; THROTTLED stops the
// sequence because it signals provider capacity, not an unreachable device,
// and laundering it across transports would hide operational failures.
func (e *Engine) Dispatch(ctx context.Context, deviceID string, payload *push.Payload) (*Result, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	target, err := e.devices.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
		}
		return nil, fmt.Errorf("failed to load device target: %w", err)
	}
	if !target.Active || len(target.Capabilities) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeviceInactive, deviceID)
	}

	ctx = logger.WithDeviceID(ctx, deviceID)
	log := e.logger.WithContext(ctx)

	var attempts []CandidateError
	for idx, platform := range target.Capabilities {
		// Caller cancellation is honored between candidates; once a provider
		// call is issued the ledger entry stands and ack/sweep settles it.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prov, err := e.registry.Resolve(platform)
		if err != nil {
			// Capability without a registered provider: skip, record nothing.
			log.Debug("skipping unregistered platform", slog.String("platform", string(platform)))
			continue
		}

		messageID := uuid.NewString()
		attemptPayload := withMessageID(payload, messageID)
		if attemptPayload.EncodedSize() > prov.MaxPayloadBytes() {
			shrunk, ok := payload.Shrunk()
			if ok {
				shrunk = withMessageID(shrunk, messageID)
			}
			if !ok || shrunk.EncodedSize() > prov.MaxPayloadBytes() {
				// Size is a payload-level problem; a different provider limit
				// will not save it, so do not advance further candidates.
				return nil, &DispatchError{Code: provider.ErrorPayloadTooLarge, Attempts: attempts}
			}
			log.Info("payload shrunk to download reference",
				slog.String("platform", string(platform)),
				slog.Int("original_size", payload.EncodedSize()))
			attemptPayload = shrunk
		}

		rec := &ledger.Record{
			MessageID:    messageID,
			DeviceID:     deviceID,
			SiteID:       target.SiteID,
			JobID:        attemptPayload.Data["job_id"],
			Provider:     platform,
			AttemptIndex: idx,
			TTLSeconds:   attemptPayload.TTL(),
			SentAt:       time.Now().UTC(),
		}
		if err := e.ledger.RecordSent(ctx, rec); err != nil {
			return nil, err
		}

		sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
		outcome := prov.Send(sendCtx, *target, attemptPayload)
		cancel()

		if outcome.Success {
			if idx > 0 {
				metrics.FallbackTotal.WithLabelValues(string(platform)).Inc()
			}
			log.Info("dispatch sent",
				slog.String("message_id", messageID),
				slog.String("provider", string(platform)),
				slog.Int("attempt_index", idx))
			return &Result{
				MessageID:    messageID,
				Provider:     platform,
				Status:       ledger.StatusSent,
				AttemptIndex: idx,
			}, nil
		}

		if err := e.ledger.RecordFailure(ctx, messageID, string(outcome.ErrorCode), outcome.ErrorMessage); err != nil {
			log.LogError(ctx, err, "failed to persist attempt failure",
				"message_id", messageID)
		}
		attempts = append(attempts, CandidateError{
			Provider: platform,
			Code:     outcome.ErrorCode,
			Message:  outcome.ErrorMessage,
		})

		switch outcome.ErrorCode {
		case provider.ErrorTargetExpired:
			// Token is dead: deactivate it so future dispatches skip this
			// transport, then fall through to the next candidate.
			if err := e.devices.DeactivateToken(ctx, deviceID, platform); err != nil {
				log.LogError(ctx, err, "failed to deactivate expired token",
					"platform", string(platform))
			}
			log.Warn("target expired, advancing to fallback",
				slog.String("platform", string(platform)))

		case provider.ErrorThrottled:
			// Capacity signal, not unreachability: surface to the caller.
			log.Warn("provider throttled, not advancing fallback",
				slog.String("platform", string(platform)),
				slog.Int("retry_after_seconds", outcome.RetryAfterSeconds))
			return nil, &DispatchError{
				Code:              provider.ErrorThrottled,
				RetryAfterSeconds: outcome.RetryAfterSeconds,
				Attempts:          attempts,
			}

		case provider.ErrorServiceUnavailable, provider.ErrorInvalidTarget:
			log.Warn("provider attempt failed, advancing to fallback",
				slog.String("platform", string(platform)),
				slog.String("code", string(outcome.ErrorCode)))

		case provider.ErrorUnauthorized, provider.ErrorUnknown:
			// Usually misconfiguration, not device-side fallback need: still
			// advance, but flag for operators.
			metrics.OperatorAlertsTotal.WithLabelValues(string(platform), string(outcome.ErrorCode)).Inc()
			log.Error("provider attempt failed, flagged for operators",
				slog.String("platform", string(platform)),
				slog.String("code", string(outcome.ErrorCode)),
				slog.String("error", outcome.ErrorMessage))
		}
	}

	code := provider.ErrorServiceUnavailable
	if len(attempts) == 0 {
		// Every capability was unregistered.
		code = provider.ErrorInvalidTarget
	}
	return nil, &DispatchError{Code: code, Attempts: attempts}
}

// withMessageID copies the payload with the ledger message id added to the
// data map, so the device can acknowledge what it received.
func withMessageID(p *push.Payload, messageID string) *push.Payload {
	out := *p
	out.Data = make(map[string]string, len(p.Data)+1)
	for k, v := range p.Data {
		out.Data[k] = v
	}
	out.Data["message_id"] = messageID
	return &out
}
