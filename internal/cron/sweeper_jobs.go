package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/notifications"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/orders"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

const (
	defaultSweepBatch      = 100
	defaultGatewayDeadline = 15 * time.Minute
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type txDB interface {
	txRunner
	DB() *gorm.DB
}

type lockExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
}

type orderPurger interface {
	Purge(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, rule orders.PurgeRule, cutoff time.Time) (*orders.PurgeResult, error)
}

// Notifier delivers shopper messages without blocking the sweep.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, msg notifications.Message)
}

// StockLockExpiryJobParams configure the hold expiry sweep.
type StockLockExpiryJobParams struct {
	Logger    *logger.Logger
	Expirer   lockExpirer
	BatchSize int
}

// NewStockLockExpiryJob deletes lapsed stock locks and hands their quantity
// back to the shelf.
func NewStockLockExpiryJob(params StockLockExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("stock lock expirer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &stockLockExpiryJob{logg: params.Logger, expirer: params.Expirer, batch: batch, now: time.Now}, nil
}

type stockLockExpiryJob struct {
	logg    *logger.Logger
	expirer lockExpirer
	batch   int
	now     func() time.Time
}

func (j *stockLockExpiryJob) Name() string { return "stock-lock-expiry" }

func (j *stockLockExpiryJob) Run(ctx context.Context) error {
	expired, err := j.expirer.ExpireStale(ctx, j.now().UTC(), j.batch)
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "stock locks expired")
	}
	if err != nil {
		return fmt.Errorf("expire stock locks: %w", err)
	}
	return nil
}

// OrderPurgeJobParams configure the two order sweeps.
type OrderPurgeJobParams struct {
	Logger          *logger.Logger
	DB              txDB
	Purger          orderPurger
	Notifier        Notifier
	BatchSize       int
	GatewayDeadline time.Duration
}

// NewOrderAutoDeleteJob removes PENDING orders whose failed-payment retry
// window has closed.
func NewOrderAutoDeleteJob(params OrderPurgeJobParams) (Job, error) {
	job, err := newOrderPurgeJob(params, "order-auto-delete", orders.RuleAutoDelete)
	if err != nil {
		return nil, err
	}
	job.cutoff = func(now time.Time) time.Time { return now }
	job.find = orders.DueAutoDelete
	return job, nil
}

// NewGatewayPendingExpiryJob removes gateway orders whose latest payment
// attempt stayed PENDING past the deadline, measured from payment creation.
func NewGatewayPendingExpiryJob(params OrderPurgeJobParams) (Job, error) {
	job, err := newOrderPurgeJob(params, "gateway-pending-expiry", orders.RuleGatewayPending)
	if err != nil {
		return nil, err
	}
	deadline := params.GatewayDeadline
	if deadline <= 0 {
		deadline = defaultGatewayDeadline
	}
	job.cutoff = func(now time.Time) time.Time { return now.Add(-deadline) }
	job.find = orders.StaleGatewayPending
	return job, nil
}

func newOrderPurgeJob(params OrderPurgeJobParams, name string, rule orders.PurgeRule) (*orderPurgeJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Purger == nil {
		return nil, fmt.Errorf("order purger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &orderPurgeJob{
		name:     name,
		rule:     rule,
		logg:     params.Logger,
		db:       params.DB,
		purger:   params.Purger,
		notifier: params.Notifier,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type orderPurgeJob struct {
	name     string
	rule     orders.PurgeRule
	logg     *logger.Logger
	db       txDB
	purger   orderPurger
	notifier Notifier
	batch    int
	cutoff   func(now time.Time) time.Time
	find     func(ctx context.Context, conn *gorm.DB, cutoff time.Time, limit int) ([]uuid.UUID, error)
	now      func() time.Time
}

func (j *orderPurgeJob) Name() string { return j.name }

// Run purges each candidate in its own transaction. Candidates that a
// callback, retry or cancel moved on from are skipped, not failed.
func (j *orderPurgeJob) Run(ctx context.Context) error {
	cutoff := j.cutoff(j.now().UTC())
	ids, err := j.find(ctx, j.db.DB(), cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}

	var (
		errs    error
		purged  int
		skipped int
	)
	for _, id := range ids {
		var result *orders.PurgeResult
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			result, err = j.purger.Purge(ctx, tx, id, j.rule, cutoff)
			return err
		})
		if err != nil {
			if errors.Is(err, orders.ErrPurgeSkipped) {
				skipped++
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("purge order %s: %w", id, err))
			continue
		}
		purged++
		j.notify(ctx, result)
	}

	if len(ids) > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"rule":       string(j.rule),
			"cutoff":     cutoff,
			"candidates": len(ids),
			"purged":     purged,
			"skipped":    skipped,
		}), "unpaid orders purged")
	}
	return errs
}

func (j *orderPurgeJob) notify(ctx context.Context, result *orders.PurgeResult) {
	if j.notifier == nil || result == nil {
		return
	}
	body := "Your order was removed because payment was not completed in time."
	if j.rule == orders.RuleAutoDelete {
		body = "Your order was removed because the payment retry window closed."
	}
	j.notifier.Notify(ctx, result.UserID, notifications.Message{
		Title: "Order expired",
		Body:  body,
		Data:  map[string]any{"order_id": result.OrderID.String(), "rule": string(result.Rule)},
	})
}
