package cron

import (
	"context"
	"fmt"

	"github.com/openshelf/circulation-backend/pkg/logger"
)

// overdueSweeper is the slice of the lending ledger this job drives.
type overdueSweeper interface {
	ProcessOverdueLoans(ctx context.Context) (int, error)
}

// OverdueFeesJobParams configure the overdue fee refresh sweep.
type OverdueFeesJobParams struct {
	Logger *logger.Logger
	Ledger overdueSweeper
}

// NewOverdueFeesJob builds the job that recomputes accrued fees on
// overdue loans.
func NewOverdueFeesJob(params OverdueFeesJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	return &overdueFeesJob{
		log:    params.Logger,
		ledger: params.Ledger,
	}, nil
}

type overdueFeesJob struct {
	log    *logger.Logger
	ledger overdueSweeper
}

func (j *overdueFeesJob) Name() string { return "overdue-fees" }

func (j *overdueFeesJob) Run(ctx context.Context) error {
	processed, err := j.ledger.ProcessOverdueLoans(ctx)
	logCtx := j.log.WithField(ctx, "refreshed", processed)
	if err != nil {
		j.log.Warn(logCtx, "overdue fee sweep finished with failures")
		return err
	}
	j.log.Info(logCtx, "overdue fee sweep complete")
	return nil
}
