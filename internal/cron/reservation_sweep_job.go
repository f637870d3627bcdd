package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

type reservationSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type ReservationSweepJobParams struct {
	Logger   *logger.Logger
	Sweeper  reservationSweeper
	Interval time.Duration
}

// NewReservationSweepJob releases reservations whose TTL has passed.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("reservation sweeper required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &reservationSweepJob{logg: params.Logger, sweeper: params.Sweeper, interval: interval}, nil
}

type reservationSweepJob struct {
	logg     *logger.Logger
	sweeper  reservationSweeper
	interval time.Duration
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Every() time.Duration { return j.interval }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	released, err := j.sweeper.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("reservation sweep: %w", err)
	}
	if released > 0 {
		j.logg.Info(j.logg.WithField(ctx, "released", released), "expired reservations released")
	}
	return nil
}
