// Package sweeper periodically cancels purchase intents that were never paid.
//
// An old pending intent is cancelled only when the payment provider reports
// the payment as failed or unknown; a late confirmation of a real payment must
// still complete the purchase. Without a provider client the sweeper is off.
package sweeper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/digimart/internal/model"
	"github.com/iurnickita/digimart/internal/service/paymentclient"
	"github.com/iurnickita/digimart/internal/store"
	"github.com/iurnickita/digimart/internal/sweeper/config"
)

// сколько покупок проверять за один проход
const batchSize = 100

type Store interface {
	FindAbandoned(ctx context.Context, olderThan time.Time, limit int) ([]model.Purchase, error)
	Transition(ctx context.Context, id string, from, to model.PurchaseStatus, fields model.TransitionFields) (model.Purchase, error)
}

type PaymentChecker interface {
	GetPayment(ctx context.Context, paymentRef string) (paymentclient.PaymentAnswer, error)
}

type Sweeper struct {
	store    Store
	payments PaymentChecker
	cfg      config.Config
	zaplog   *zap.Logger
	now      func() time.Time
}

func NewSweeper(cfg config.Config, store Store, payments PaymentChecker, zaplog *zap.Logger) *Sweeper {
	if zaplog == nil {
		zaplog = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return &Sweeper{store: store, payments: payments, cfg: cfg, zaplog: zaplog, now: time.Now}
}

func (s *Sweeper) Enabled() bool {
	return s.cfg.PendingTTL > 0 && s.payments != nil
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.Enabled() {
		s.zaplog.Info("sweeper disabled",
			zap.Duration("pending_ttl", s.cfg.PendingTTL),
			zap.Bool("payment_provider", s.payments != nil))
		return nil
	}

	s.zaplog.Info("sweeper started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("pending_ttl", s.cfg.PendingTTL))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.zaplog.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if _, err := s.RunNow(runCtx); err != nil {
				s.zaplog.Error("sweep failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// RunNow performs one sweep and returns the number of cancelled intents.
func (s *Sweeper) RunNow(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	now := s.now()
	abandoned, err := s.store.FindAbandoned(ctx, now.Add(-s.cfg.PendingTTL), batchSize)
	if err != nil {
		return 0, err
	}

	var expired int64
	for _, purchase := range abandoned {
		if !s.unpaid(ctx, purchase) {
			continue
		}
		_, err := s.store.Transition(ctx, purchase.ID,
			model.PurchaseStatusPending, model.PurchaseStatusRefunded,
			model.TransitionFields{UpdatedAt: now})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				// покупку успели подтвердить
				continue
			}
			return expired, err
		}
		expired++
	}

	if expired > 0 {
		s.zaplog.Info("abandoned purchases expired", zap.Int64("count", expired))
	}
	return expired, nil
}

// unpaid reports whether the provider has definitely not taken the payment.
func (s *Sweeper) unpaid(ctx context.Context, purchase model.Purchase) bool {
	answer, err := s.payments.GetPayment(ctx, purchase.Data.PaymentRef)
	if errors.Is(err, paymentclient.ErrUnknownPayment) {
		return true
	}
	if err != nil {
		s.zaplog.Warn("payment status unavailable, intent kept",
			zap.String("purchase_id", purchase.ID),
			zap.String("payment_ref", purchase.Data.PaymentRef),
			zap.Error(err))
		return false
	}
	return answer.Status == paymentclient.PaymentStatusFailed
}
