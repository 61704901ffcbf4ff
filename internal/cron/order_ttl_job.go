package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/bcolabs/fightcards-backend/pkg/logger"
)

const (
	orderExpireBatchSize = 200
	paidSweepBatchSize   = 50
)

// OrderTTLJobParams configure the order maintenance job.
type OrderTTLJobParams struct {
	Logger *logger.Logger
	Orders orderMaintainer

	// CheckoutWindow is how long a created order may sit unpaid before it
	// is failed.
	CheckoutWindow time.Duration

	// PaidWindow is how long a paid order may sit unminted before the
	// backend finalizes it on the buyer's behalf.
	PaidWindow time.Duration
}

type orderMaintainer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	SweepPaid(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// NewOrderTTLJob builds the cron job that fails abandoned checkouts and
// finalizes paid orders the client never finished.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if params.CheckoutWindow <= 0 {
		return nil, fmt.Errorf("checkout window must be positive")
	}
	if params.PaidWindow <= 0 {
		return nil, fmt.Errorf("paid window must be positive")
	}
	return &orderTTLJob{
		logg:           params.Logger,
		orders:         params.Orders,
		checkoutWindow: params.CheckoutWindow,
		paidWindow:     params.PaidWindow,
	}, nil
}

type orderTTLJob struct {
	logg           *logger.Logger
	orders         orderMaintainer
	checkoutWindow time.Duration
	paidWindow     time.Duration
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

func (j *orderTTLJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.expireCreated(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.sweepPaid(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

func (j *orderTTLJob) expireCreated(ctx context.Context) error {
	expired, err := j.orders.ExpireStale(ctx, j.checkoutWindow, orderExpireBatchSize)
	if err != nil {
		return fmt.Errorf("expire stale orders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": expired})
	j.logg.Info(logCtx, "order expiration loop complete")
	return nil
}

func (j *orderTTLJob) sweepPaid(ctx context.Context) error {
	minted, err := j.orders.SweepPaid(ctx, j.paidWindow, paidSweepBatchSize)
	if err != nil {
		return fmt.Errorf("sweep paid orders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": minted})
	j.logg.Info(logCtx, "paid order sweep complete")
	return nil
}
