package payout

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/madpools/calcutta/calcutta/database/models"
)

const retryBatchSize = 100

// RetryScheduler periodically re-attempts FAILED payouts. A payout fails when
// the owner had no member row at processing time (for example a membership
// record repaired after the fact); the money stays on the books until the
// credit lands.
type RetryScheduler struct {
	store Store
	cron  *cron.Cron
}

func NewRetryScheduler(store Store) *RetryScheduler {
	return &RetryScheduler{
		store: store,
		cron:  cron.New(),
	}
}

// Start registers the retry job and launches the cron loop.
func (rs *RetryScheduler) Start() error {
	_, err := rs.cron.AddFunc("@every 1m", func() {
		ctx := context.Background()
		if err := rs.RetryFailed(ctx); err != nil {
			slog.Error("Payout retry pass failed",
				slog.String("type", "payout"),
				slog.Any("error", err),
			)
		}
	})
	if err != nil {
		return err
	}
	rs.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for an in-flight pass to finish.
func (rs *RetryScheduler) Stop() {
	<-rs.cron.Stop().Done()
}

// RetryFailed re-attempts a batch of failed payouts. Each payout retries in
// its own transaction so one stuck row does not hold the rest hostage.
func (rs *RetryScheduler) RetryFailed(ctx context.Context) error {
	failed, err := rs.store.FailedPayouts(ctx, retryBatchSize)
	if err != nil {
		return err
	}
	if len(failed) == 0 {
		return nil
	}

	retried := 0
	for _, p := range failed {
		err := rs.store.InTx(ctx, func(ctx context.Context, s Store) error {
			member, err := s.Member(ctx, p.PoolID, p.UserID)
			if err != nil {
				return err
			}
			member.Balance += p.Amount
			if err := s.UpdateMember(ctx, member); err != nil {
				return err
			}
			p.Status = models.PayoutProcessed
			return s.UpdatePayout(ctx, p)
		})
		if err != nil {
			if models.IsNotFound(err) {
				continue // still no member row, try again next pass
			}
			slog.Error("Payout retry failed",
				slog.String("type", "payout"),
				slog.Int64("payout_id", p.ID),
				slog.Any("error", err),
			)
			continue
		}
		retried++
	}

	if retried > 0 {
		slog.Info("Retried failed payouts",
			slog.String("type", "payout"),
			slog.Int("retried", retried),
			slog.Int("remaining", len(failed)-retried),
		)
	}
	return nil
}
