// Package sweeper promotes unacknowledged, TTL-elapsed delivery records to
// EXPIRED on a fixed schedule.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/relayhq/pushcore/internal/ledger"
	"github.com/relayhq/pushcore/internal/logger"
	"github.com/relayhq/pushcore/internal/metrics"
)

// DefaultInterval is the recommended sweep cadence.
const DefaultInterval = 60 * time.Second

// passTimeout bounds one sweep pass against a slow store.
const passTimeout = 30 * time.Second

// Sweeper runs the expiry pass on a cron schedule. It is the only ledger
// writer besides the acknowledgment path; both use conditional transitions so
// exactly one wins per record.
type Sweeper struct {
	store    ledger.Store
	logger   *logger.Logger
	cron     *cron.Cron
	interval time.Duration
}

// New creates a sweeper. interval <= 0 selects the default.
func New(store ledger.Store, log *logger.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		store:    store,
		logger:   log.WithComponent("sweeper"),
		cron:     cron.New(),
		interval: interval,
	}
}

// Start schedules the sweep and returns immediately.
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.pass); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("expiry sweeper started", slog.Duration("interval", s.interval))
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("expiry sweeper stopped")
}

// pass is the scheduled entrypoint. A failing pass is logged and retried at
// the next interval; it never takes the process down, since a missed sweep
// only delays EXPIRED marking.
func (s *Sweeper) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("sweep pass failed", slog.String("error", err.Error()))
	}
}

// RunOnce performs a single sweep pass and returns how many records expired.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire due records: %w", err)
	}

	if n > 0 {
		metrics.SweepExpiredTotal.Add(float64(n))
		s.logger.Info("expired unacknowledged records", slog.Int64("count", n))
	}
	return n, nil
}
