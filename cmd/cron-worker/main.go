package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/cron"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/inventory"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/notifications"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/orders"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/reservation"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/bootstrap"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
)

const notifyTimeout = 5 * time.Second

func main() {
	proc := bootstrap.Start("cron-worker")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.DB()
	redisClient := proc.Redis()

	engineMetrics := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), proc.Instance(), 0)
	proc.Must("create cron lock", err)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)
	ledger := inventory.NewLedger()

	notificationRepo := notifications.NewRepository(dbClient.DB())
	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repo:      notificationRepo,
		Publisher: proc.Publisher(),
		Topic:     cfg.Eventing.NotificationTopic,
		Logger:    logg,
	})
	proc.Must("create notifications service", err)
	notifier := notifications.NewAsyncNotifier(notificationService, logg, notifyTimeout)

	reservationService, err := reservation.NewService(reservation.ServiceParams{
		DB:         dbClient,
		Ledger:     ledger,
		Cooldowns:  redisClient,
		Metrics:    engineMetrics,
		Logger:     logg,
		HoldWindow: cfg.Reservation.HoldWindow,
		Cooldown:   cfg.Reservation.Cooldown,
	})
	proc.Must("create reservation service", err)

	purger, err := orders.NewPurger(ledger, outboxService)
	proc.Must("create order purger", err)

	jobs, err := buildJobs(cfg, logg, dbClient, reservationService, purger, notifier, outboxRepo, notificationRepo)
	proc.Must("build cron jobs", err)

	registry, err := cron.NewRegistry(jobs...)
	proc.Must("register cron jobs", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Sweeper.Interval,
	})
	proc.Must("create cron service", err)

	ctx, stop := proc.SignalContext(map[string]any{"jobs": registry.Names()})
	defer stop()
	logg.Info(ctx, "cron worker started")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Must("run cron cycles", err)
	}
	logg.Info(ctx, "cron worker stopped")
}

func buildJobs(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	reservations *reservation.Service,
	purger *orders.Purger,
	notifier cron.Notifier,
	outboxRepo *outbox.Repository,
	notificationRepo notifications.Repository,
) ([]cron.Job, error) {
	var jobs []cron.Job

	lockExpiry, err := cron.NewStockLockExpiryJob(cron.StockLockExpiryJobParams{
		Logger:    logg,
		Expirer:   reservations,
		BatchSize: cfg.Sweeper.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, lockExpiry)

	purgeParams := cron.OrderPurgeJobParams{
		Logger:          logg,
		DB:              dbClient,
		Purger:          purger,
		Notifier:        notifier,
		BatchSize:       cfg.Sweeper.BatchSize,
		GatewayDeadline: cfg.Sweeper.GatewayPendingDeadline,
	}
	autoDelete, err := cron.NewOrderAutoDeleteJob(purgeParams)
	if err != nil {
		return nil, err
	}
	pendingExpiry, err := cron.NewGatewayPendingExpiryJob(purgeParams)
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, autoDelete, pendingExpiry)

	outboxRetention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "outbox-retention",
		Logger:    logg,
		DB:        dbClient,
		Delete:    outboxRepo.DeletePublishedBefore,
		Retention: cfg.Sweeper.OutboxRetention,
	})
	if err != nil {
		return nil, err
	}
	notificationRetention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "notification-retention",
		Logger:    logg,
		DB:        dbClient,
		Delete:    notificationRepo.DeleteOlderThan,
		Retention: cfg.Sweeper.NotificationRetention,
	})
	if err != nil {
		return nil, err
	}
	return append(jobs, outboxRetention, notificationRetention), nil
}
