package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KTAKhang/SEP490-Group10-sub002/api/controllers"
	cartcontrollers "github.com/KTAKhang/SEP490-Group10-sub002/api/controllers/cart"
	ordercontrollers "github.com/KTAKhang/SEP490-Group10-sub002/api/controllers/orders"
	"github.com/KTAKhang/SEP490-Group10-sub002/api/middleware"
	checkoutsvc "github.com/KTAKhang/SEP490-Group10-sub002/internal/checkout"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/notifications"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/orders"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
	pkgredis "github.com/KTAKhang/SEP490-Group10-sub002/pkg/redis"
)

// Deps carries everything the HTTP surface dispatches to. Nil services make
// their handlers answer 500 rather than panic.
type Deps struct {
	Registry    *prometheus.Registry
	HTTPMetrics *metrics.HTTPMetrics
	Readiness   map[string]controllers.Pinger
	Idempotency pkgredis.IdempotencyStore

	Reservations  controllers.ReservationService
	Cart          cartcontrollers.Service
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Refunds       controllers.RefundRetrier
	Notifications notifications.Service

	Callbacks     controllers.CallbackProcessor
	CallbackGuard controllers.CallbackGuard
	Redirects     controllers.RedirectTargets
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/payments/gateway", func(r chi.Router) {
		r.Get("/return", controllers.GatewayReturn(deps.Callbacks, deps.CallbackGuard, deps.Redirects, logg))
		r.Get("/ipn", controllers.GatewayIPN(deps.Callbacks, deps.CallbackGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleCustomer))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", controllers.ListReservations(deps.Reservations, logg))
			r.Post("/", controllers.ReserveStock(deps.Reservations, logg))
			r.Delete("/{productID}", controllers.ReleaseStock(deps.Reservations, logg))
		})

		r.Get("/cart", cartcontrollers.CartFetch(deps.Cart, logg))
		r.Put("/cart/items", cartcontrollers.CartUpsertItem(deps.Cart, logg))

		r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderID}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderID}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.Post("/{orderID}/retry-payment", ordercontrollers.RetryPayment(deps.Orders, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderID}", ordercontrollers.Detail(deps.Orders, logg))
			r.Patch("/{orderID}/status", ordercontrollers.AdminUpdateStatus(deps.Orders, logg))
		})

		r.Post("/refunds/{refundID}/retry", controllers.AdminRetryRefund(deps.Refunds, logg))
	})

	return r
}
