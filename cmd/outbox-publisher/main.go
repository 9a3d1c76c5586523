package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/bootstrap"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox/registry"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.DB()
	publisher := proc.Publisher()

	eventRegistry, err := registry.NewEventRegistry(cfg.Eventing)
	proc.Must("build event registry", err)

	service, err := NewService(ServiceParams{
		Outbox:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		Transport:  publisher,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   eventRegistry,
		Metrics:    metrics.NewEngineMetrics(prometheus.DefaultRegisterer),
	})
	proc.Must("create outbox publisher", err)

	ctx, stop := proc.SignalContext(map[string]any{"transport": cfg.Eventing.Transport})
	defer stop()
	logg.Info(ctx, "outbox publisher started")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Must("relay outbox", err)
	}
	logg.Info(ctx, "outbox publisher stopped")
}
