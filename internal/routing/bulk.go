package routing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/relayhq/pushcore/internal/device"
	"github.com/relayhq/pushcore/internal/ledger"
	"github.com/relayhq/pushcore/internal/metrics"
	"github.com/relayhq/pushcore/internal/provider"
	"github.com/relayhq/pushcore/internal/push"
)

// BulkRequestItem pairs one device with one payload in a bulk dispatch.
type BulkRequestItem struct {
	DeviceID string
	Payload  *push.Payload
}

// BulkResultItem reports one item's outcome. Items are returned in request
// order.
type BulkResultItem struct {
	DeviceID     string             `json:"device_id"`
	MessageID    string             `json:"message_id,omitempty"`
	Provider     push.Platform      `json:"provider,omitempty"`
	Status       ledger.Status      `json:"status,omitempty"`
	ErrorCode    provider.ErrorCode `json:"error_code,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// bulkAttempt tracks one prepared item through a provider batch.
type bulkAttempt struct {
	index     int
	messageID string
	deviceID  string
	item      provider.BulkItem
}

// DispatchBulk fans a batch out through each device's primary provider using
// the providers' own bounded SendBulk. Bulk mode attempts every item and
// never fails the batch; unlike Dispatch it does not fall back across
// transports per item — callers wanting fallback retry failed items through
// Dispatch.
func (e *Engine) DispatchBulk(ctx context.Context, items []BulkRequestItem) []BulkResultItem {
	log := e.logger.WithContext(ctx)
	results := make([]BulkResultItem, len(items))
	batches := make(map[push.Platform][]bulkAttempt)

	for i, item := range items {
		results[i].DeviceID = item.DeviceID

		if err := item.Payload.Validate(); err != nil {
			results[i].ErrorCode = provider.ErrorPayloadTooLarge
			results[i].ErrorMessage = err.Error()
			continue
		}

		target, err := e.devices.Get(ctx, item.DeviceID)
		if err != nil {
			results[i].ErrorCode = provider.ErrorInvalidTarget
			if errors.Is(err, device.ErrNotFound) {
				results[i].ErrorMessage = "unknown device"
			} else {
				results[i].ErrorMessage = err.Error()
			}
			continue
		}
		if !target.Active || len(target.Capabilities) == 0 {
			results[i].ErrorCode = provider.ErrorInvalidTarget
			results[i].ErrorMessage = "device inactive"
			continue
		}

		platform, prov := e.firstRegistered(target.Capabilities)
		if prov == nil {
			results[i].ErrorCode = provider.ErrorInvalidTarget
			results[i].ErrorMessage = "no registered provider for device capabilities"
			continue
		}

		messageID := uuid.NewString()
		attemptPayload := withMessageID(item.Payload, messageID)
		if attemptPayload.EncodedSize() > prov.MaxPayloadBytes() {
			shrunk, ok := item.Payload.Shrunk()
			if ok {
				shrunk = withMessageID(shrunk, messageID)
			}
			if !ok || shrunk.EncodedSize() > prov.MaxPayloadBytes() {
				results[i].ErrorCode = provider.ErrorPayloadTooLarge
				results[i].ErrorMessage = "payload exceeds provider limit"
				continue
			}
			attemptPayload = shrunk
		}

		rec := &ledger.Record{
			MessageID:    messageID,
			DeviceID:     item.DeviceID,
			SiteID:       target.SiteID,
			JobID:        attemptPayload.Data["job_id"],
			Provider:     platform,
			AttemptIndex: 0,
			TTLSeconds:   attemptPayload.TTL(),
			SentAt:       time.Now().UTC(),
		}
		if err := e.ledger.RecordSent(ctx, rec); err != nil {
			results[i].ErrorCode = provider.ErrorUnknown
			results[i].ErrorMessage = err.Error()
			continue
		}

		results[i].MessageID = messageID
		results[i].Provider = platform
		batches[platform] = append(batches[platform], bulkAttempt{
			index:     i,
			messageID: messageID,
			deviceID:  item.DeviceID,
			item:      provider.BulkItem{Target: *target, Payload: attemptPayload},
		})
	}

	for platform, attempts := range batches {
		prov, err := e.registry.Resolve(platform)
		if err != nil {
			continue
		}

		bulkItems := make([]provider.BulkItem, len(attempts))
		for j, a := range attempts {
			bulkItems[j] = a.item
		}

		outcomes := prov.SendBulk(ctx, bulkItems)
		for j, a := range attempts {
			outcome := outcomes[j]
			if outcome.Success {
				results[a.index].Status = ledger.StatusSent
				continue
			}

			results[a.index].Status = ledger.StatusFailed
			results[a.index].ErrorCode = outcome.ErrorCode
			results[a.index].ErrorMessage = outcome.ErrorMessage

			if err := e.ledger.RecordFailure(ctx, a.messageID, string(outcome.ErrorCode), outcome.ErrorMessage); err != nil {
				log.LogError(ctx, err, "failed to persist bulk attempt failure",
					"message_id", a.messageID)
			}

			switch outcome.ErrorCode {
			case provider.ErrorTargetExpired:
				if err := e.devices.DeactivateToken(ctx, a.deviceID, platform); err != nil {
					log.LogError(ctx, err, "failed to deactivate expired token",
						"device_id", a.deviceID)
				}
			case provider.ErrorUnauthorized, provider.ErrorUnknown:
				metrics.OperatorAlertsTotal.WithLabelValues(string(platform), string(outcome.ErrorCode)).Inc()
			}
		}

		log.Info("bulk batch dispatched",
			slog.String("provider", string(platform)),
			slog.Int("items", len(attempts)))
	}

	return results
}

// firstRegistered returns the first capability with a registered provider.
func (e *Engine) firstRegistered(capabilities []push.Platform) (push.Platform, provider.Provider) {
	for _, platform := range capabilities {
		if prov, err := e.registry.Resolve(platform); err == nil {
			return platform, prov
		}
	}
	return "", nil
}
