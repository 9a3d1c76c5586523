package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/gateway"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/notifications"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/refunds"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/bootstrap"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
)

const notifyTimeout = 5 * time.Second

func main() {
	proc := bootstrap.Start("refund-worker")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.DB()

	gatewayClient, err := gateway.NewClient(cfg.Gateway)
	proc.Must("create gateway client", err)

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repo:      notifications.NewRepository(dbClient.DB()),
		Publisher: proc.Publisher(),
		Topic:     cfg.Eventing.NotificationTopic,
		Logger:    logg,
	})
	proc.Must("create notifications service", err)

	worker, err := refunds.NewWorker(refunds.WorkerParams{
		DB:            dbClient,
		Gateway:       gatewayClient,
		Outbox:        outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Notifier:      notifications.NewAsyncNotifier(notificationService, logg, notifyTimeout),
		Metrics:       metrics.NewEngineMetrics(prometheus.DefaultRegisterer),
		Logger:        logg,
		BatchSize:     cfg.Refund.BatchSize,
		PollInterval:  cfg.Refund.PollInterval,
		StaleAfter:    cfg.Refund.StaleAfter,
		MerchantActor: cfg.Refund.MerchantActor,
	})
	proc.Must("create refund worker", err)

	ctx, stop := proc.SignalContext(nil)
	defer stop()
	logg.Info(ctx, "refund worker started")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Must("process refunds", err)
	}
	logg.Info(ctx, "refund worker stopped")
}
