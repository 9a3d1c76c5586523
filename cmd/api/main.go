package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/KTAKhang/SEP490-Group10-sub002/api/controllers"
	"github.com/KTAKhang/SEP490-Group10-sub002/api/routes"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/cart"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/checkout"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/gateway"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/inventory"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/notifications"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/orders"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/payments"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/refunds"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/reservation"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/bootstrap"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
)

const (
	notifyTimeout   = 5 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	proc := bootstrap.Start("api")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.DB()
	redisClient := proc.Redis()
	publisher := proc.Publisher()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics := metrics.NewEngineMetrics(registry)

	gatewayClient, err := gateway.NewClient(cfg.Gateway)
	proc.Must("create gateway client", err)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ledger := inventory.NewLedger()

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repo:      notifications.NewRepository(dbClient.DB()),
		Publisher: publisher,
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

	cartService, err := cart.NewService(cart.NewRepository(dbClient.DB()))
	proc.Must("create cart service", err)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		DB:       dbClient,
		Ledger:   ledger,
		Outbox:   outboxService,
		Gateway:  gatewayClient,
		Notifier: notifier,
		Logger:   logg,
	})
	proc.Must("create checkout service", err)

	orderService, err := orders.NewService(orders.ServiceParams{
		DB:       dbClient,
		Repo:     orders.NewRepository(dbClient.DB()),
		Ledger:   ledger,
		Outbox:   outboxService,
		Gateway:  gatewayClient,
		Notifier: notifier,
		Logger:   logg,
	})
	proc.Must("create orders service", err)

	refundService, err := refunds.NewService(dbClient, logg)
	proc.Must("create refunds service", err)

	callbackProcessor, err := payments.NewCallbackProcessor(payments.CallbackProcessorParams{
		DB:          dbClient,
		Parser:      gatewayClient,
		Outbox:      outboxService,
		Metrics:     engineMetrics,
		Logger:      logg,
		RetryWindow: cfg.Sweeper.RetryWindow,
	})
	proc.Must("create callback processor", err)

	callbackGuard, err := payments.NewCallbackGuard(redisClient, cfg.Eventing.CallbackGuardTTL)
	proc.Must("create callback guard", err)

	handler := routes.NewRouter(cfg, logg, routes.Deps{
		Registry:    registry,
		HTTPMetrics: metrics.NewHTTPMetrics(registry),
		Readiness: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Idempotency:   redisClient,
		Reservations:  reservationService,
		Cart:          cartService,
		Checkout:      checkoutService,
		Orders:        orderService,
		Refunds:       refundService,
		Notifications: notificationService,
		Callbacks:     callbackProcessor,
		CallbackGuard: callbackGuard,
		Redirects: controllers.RedirectTargets{
			SuccessURL: cfg.Gateway.SuccessRedirectURL,
			FailURL:    cfg.Gateway.FailRedirectURL,
		},
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := proc.SignalContext(map[string]any{
		"addr":      addr,
		"transport": cfg.Eventing.Transport,
	})
	defer stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "api server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			proc.Must("serve http", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server stopped")
	}
}
