package cron

import (
	"context"
	"fmt"

	"github.com/bcolabs/fightcards-backend/pkg/logger"
)

const settlementRetryBatchSize = 100

// SettlementRetryJobParams configure the settlement replay job.
type SettlementRetryJobParams struct {
	Logger *logger.Logger
	Orders settlementRetrier
}

type settlementRetrier interface {
	RetrySettlements(ctx context.Context, limit int) (int, error)
}

// NewSettlementRetryJob builds the cron job that replays bookkeeping for
// minted orders whose settlement did not complete.
func NewSettlementRetryJob(params SettlementRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	return &settlementRetryJob{
		logg:   params.Logger,
		orders: params.Orders,
	}, nil
}

type settlementRetryJob struct {
	logg   *logger.Logger
	orders settlementRetrier
}

func (j *settlementRetryJob) Name() string { return "settlement-retry" }

func (j *settlementRetryJob) Run(ctx context.Context) error {
	settled, err := j.orders.RetrySettlements(ctx, settlementRetryBatchSize)
	if err != nil {
		return fmt.Errorf("retry settlements: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": settled})
	j.logg.Info(logCtx, "settlement retry loop complete")
	return nil
}
