package worker

import (
	"context"
	"fmt"
	"time"

	"bookingsvc/internal/config"
	"bookingsvc/internal/domain"
	"bookingsvc/internal/metrics"

	"github.com/rs/zerolog"
)

// ExpirySweeper removes bookings whose ttl has passed from stores that have no
// native expiry and feeds the removal records to the change handler.
//
// Records are removed before they are handled, so a handler failure loses the
// reminder for those records.
type ExpirySweeper struct {
	store        domain.ExpiringStore
	handler      domain.ChangeHandler
	retryPolicy  RetryPolicy
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
	logger       *zerolog.Logger
}

// NewExpirySweeper builds a sweeper with sane defaults.
func NewExpirySweeper(store domain.ExpiringStore, handler domain.ChangeHandler, cfg config.StoreConfig, retry RetryPolicy, logger *zerolog.Logger) *ExpirySweeper {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	w := &ExpirySweeper{
		store:        store,
		handler:      handler,
		retryPolicy:  retry.withDefaults(),
		pollInterval: cfg.SweepInterval(),
		batchSize:    cfg.SweepBatchSize,
		now:          time.Now,
		logger:       logger,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.batchSize <= 0 {
		w.batchSize = 100
	}
	return w
}

// Start runs the sweep loop until ctx is done.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.pollInterval).Int("batch_size", w.batchSize).Msg("expiry sweeper started")
	defer w.logger.Info().Msg("expiry sweeper stopped")

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := w.SweepOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			delay := w.retryPolicy.DelayAfter(failures)
			w.logger.Error().Err(err).Int("failures", failures).Dur("retry_in", delay).Msg("expiry sweep failed")
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		failures = 0

		// A full batch means more may already be due.
		if n >= w.batchSize {
			continue
		}
		if !sleep(ctx, w.pollInterval) {
			return
		}
	}
}

// SweepOnce removes one batch of expired bookings and hands the records on.
// It returns how many bookings were removed.
func (w *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	records, err := w.store.PopExpired(ctx, w.now(), w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("pop expired bookings: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	metrics.AddExpiredSwept(len(records))
	w.logger.Debug().Int("count", len(records)).Msg("expired bookings removed")

	if err := w.handler.HandleChanges(ctx, records); err != nil {
		return len(records), fmt.Errorf("handle expired bookings: %w", err)
	}
	return len(records), nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
