package cron

import (
	"context"
	"fmt"

	"github.com/openshelf/circulation-backend/pkg/logger"
)

// reservationSweeper is the slice of the lending ledger this job drives.
type reservationSweeper interface {
	ProcessExpiredReservations(ctx context.Context) (int, error)
}

// ReservationExpiryJobParams configure the reservation expiry sweep.
type ReservationExpiryJobParams struct {
	Logger *logger.Logger
	Ledger reservationSweeper
}

// NewReservationExpiryJob builds the job that expires stale reservations
// and re-packs the affected queues.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	return &reservationExpiryJob{
		log:    params.Logger,
		ledger: params.Ledger,
	}, nil
}

type reservationExpiryJob struct {
	log    *logger.Logger
	ledger reservationSweeper
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	processed, err := j.ledger.ProcessExpiredReservations(ctx)
	logCtx := j.log.WithField(ctx, "expired", processed)
	if err != nil {
		j.log.Warn(logCtx, "reservation expiry sweep finished with failures")
		return err
	}
	j.log.Info(logCtx, "reservation expiry sweep complete")
	return nil
}
