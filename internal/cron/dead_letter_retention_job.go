package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

const (
	deadLetterRetentionDays     = 30
	deadLetterRetentionInterval = 24 * time.Hour
)

type deadLetterPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type DeadLetterRetentionJobParams struct {
	Logger     *logger.Logger
	Repository deadLetterPruner
	Retention  int
}

func NewDeadLetterRetentionJob(params DeadLetterRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("dead letter repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = deadLetterRetentionDays
	}
	return &deadLetterRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type deadLetterRetentionJob struct {
	logg      *logger.Logger
	repo      deadLetterPruner
	retention int
	now       func() time.Time
}

func (j *deadLetterRetentionJob) Name() string { return "dead-letter-retention" }

func (j *deadLetterRetentionJob) Every() time.Duration { return deadLetterRetentionInterval }

func (j *deadLetterRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("dead letter retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "dead letter retention cleanup complete")
	return nil
}
