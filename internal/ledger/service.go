package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relayhq/pushcore/internal/logger"
	"github.com/relayhq/pushcore/internal/metrics"
)

// Service owns all writes to the delivery ledger.
type Service struct {
	store  Store
	logger *logger.Logger
}

// NewService creates the ledger service over a store.
func NewService(store Store, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		logger: log.WithComponent("ledger"),
	}
}

// Store exposes the underlying store for read-only collaborators.
func (s *Service) Store() Store {
	return s.store
}

// RecordSent appends a new SENT record. Called by the routing engine the
// moment it commits to a provider attempt.
func (s *Service) RecordSent(ctx context.Context, rec *Record) error {
	rec.Status = StatusSent
	if err := s.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	metrics.DeliveriesTotal.WithLabelValues(string(rec.Provider), string(StatusSent)).Inc()

	s.logger.WithContext(ctx).Debug("recorded dispatch",
		slog.String("message_id", rec.MessageID),
		slog.String("provider", string(rec.Provider)),
		slog.Int("attempt_index", rec.AttemptIndex))
	return nil
}

// RecordFailure moves a record to FAILED after a provider call came back
// unsuccessful. A record already in a terminal state is left alone.
func (s *Service) RecordFailure(ctx context.Context, messageID, errorCode, errorMessage string) error {
	updated, err := s.store.MarkFailed(ctx, messageID, errorCode, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	if updated {
		rec, err := s.store.Get(ctx, messageID)
		if err == nil {
			metrics.DeliveriesTotal.WithLabelValues(string(rec.Provider), string(StatusFailed)).Inc()
		}
	}
	return nil
}

// Acknowledge closes the loop for one message. Idempotent: re-acknowledging a
// record that already reached a terminal status is a successful no-op, and an
// unknown id returns ErrUnknownMessage without touching anything.
func (s *Service) Acknowledge(ctx context.Context, messageID string, receivedAt time.Time) error {
	log := s.logger.WithContext(ctx)

	rec, err := s.store.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("acknowledgment for unknown message", slog.String("message_id", messageID))
			return ErrUnknownMessage
		}
		return fmt.Errorf("failed to load record for acknowledgment: %w", err)
	}

	if rec.Status != StatusSent {
		// Retried device call or sweeper already won; either way the record
		// is settled.
		log.Debug("acknowledgment after terminal status",
			slog.String("message_id", messageID),
			slog.String("status", string(rec.Status)))
		return nil
	}

	latency := receivedAt.Sub(rec.SentAt).Milliseconds()
	if latency < 0 {
		// Device clocks skew; clamp rather than reject.
		log.Warn("negative acknowledgment latency clamped",
			slog.String("message_id", messageID),
			slog.Int64("latency_ms", latency))
		latency = 0
	}

	updated, err := s.store.MarkDelivered(ctx, messageID, receivedAt, latency)
	if err != nil {
		return fmt.Errorf("failed to mark delivered: %w", err)
	}
	if !updated {
		// Lost the race to the sweeper between Get and the conditional
		// update. First writer wins; this ack is a no-op.
		log.Debug("acknowledgment lost conditional update",
			slog.String("message_id", messageID))
		return nil
	}

	metrics.DeliveriesTotal.WithLabelValues(string(rec.Provider), string(StatusDelivered)).Inc()
	metrics.DeliveryLatency.WithLabelValues(string(rec.Provider)).Observe(float64(latency) / 1000)

	log.Info("delivery acknowledged",
		slog.String("message_id", messageID),
		slog.String("provider", string(rec.Provider)),
		slog.Int64("latency_ms", latency))
	return nil
}
