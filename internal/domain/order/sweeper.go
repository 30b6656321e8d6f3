package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// SweeperConfig controls idle order cleanup.
type SweeperConfig struct {
	Interval  time.Duration
	IdleAfter time.Duration
	Batch     int
}

// Sweeper periodically cancels OPEN orders that nobody touched for
// IdleAfter. Orders locked by a request are skipped until the next round.
type Sweeper struct {
	svc    *Service
	orders Repository
	cfg    SweeperConfig
}

// NewSweeper creates a Sweeper.
func NewSweeper(svc *Service, orders Repository, cfg SweeperConfig) *Sweeper {
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	return &Sweeper{svc: svc, orders: orders, cfg: cfg}
}

// Run sweeps every Interval until ctx is done.
func (w *Sweeper) Run(ctx context.Context) error {
	if w.cfg.Interval <= 0 {
		return nil
	}
	lg := zctx.From(ctx).Named("sweeper")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := w.Sweep(ctx)
			if err != nil {
				lg.Error("Sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Info("Idle orders cancelled", zap.Int("count", n))
			}
		}
	}
}

// Sweep runs one round and returns the number of cancelled orders.
func (w *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := w.svc.now().Add(-w.cfg.IdleAfter)
	ids, err := w.orders.ListIdle(ctx, cutoff, w.cfg.Batch)
	if err != nil {
		return 0, errors.Wrap(err, "list idle orders")
	}
	cancelled := 0
	for _, id := range ids {
		ok, err := w.svc.CancelIfIdle(ctx, id, cutoff)
		switch {
		case errors.Is(err, ErrLockUnavailable), errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			return cancelled, errors.Wrapf(err, "cancel order %d", id)
		case ok:
			cancelled++
		}
	}
	return cancelled, nil
}
