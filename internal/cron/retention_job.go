package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

const defaultRetention = 30 * 24 * time.Hour

// RetentionDeleter removes rows older than cutoff and reports how many went.
type RetentionDeleter func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// RetentionJobParams configure a housekeeping delete.
type RetentionJobParams struct {
	Name      string
	Logger    *logger.Logger
	DB        txRunner
	Delete    RetentionDeleter
	Retention time.Duration
}

// NewRetentionJob builds a job that trims a table past its retention window.
// It backs both the relayed-outbox and read-notification cleanups.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("job name required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Delete == nil {
		return nil, fmt.Errorf("delete func required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	return &retentionJob{
		name:      params.Name,
		logg:      params.Logger,
		db:        params.DB,
		delete:    params.Delete,
		retention: retention,
		now:       time.Now,
	}, nil
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	delete    RetentionDeleter
	retention time.Duration
	now       func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.delete(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		}), "retention cleanup complete")
	}
	return nil
}
