package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/inventory-sync/api/controllers"
	inventorycontrollers "github.com/angelmondragon/inventory-sync/api/controllers/inventory"
	reservationcontrollers "github.com/angelmondragon/inventory-sync/api/controllers/reservations"
	webhookcontrollers "github.com/angelmondragon/inventory-sync/api/controllers/webhooks"
	"github.com/angelmondragon/inventory-sync/api/middleware"
	"github.com/angelmondragon/inventory-sync/internal/inventory"
	"github.com/angelmondragon/inventory-sync/internal/reservations"
	pkgauth "github.com/angelmondragon/inventory-sync/pkg/auth"
	"github.com/angelmondragon/inventory-sync/pkg/config"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
	pkgredis "github.com/angelmondragon/inventory-sync/pkg/redis"
)

// Dependencies are the services the HTTP surface fronts. Readiness maps a
// dependency name to its pinger; Gatherer defaults to the global registry.
type Dependencies struct {
	Inventory        inventory.Service
	Reservations     reservations.Service
	ChannelWebhooks  webhookcontrollers.ChannelWebhookService
	IdempotencyStore pkgredis.IdempotencyStore
	Readiness        map[string]controllers.Pinger
	Gatherer         prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App),
	)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Readiness, logg))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// channel deliveries authenticate by HMAC signature, not bearer token
		r.Post("/webhooks/channel", webhookcontrollers.ChannelWebhook(deps.ChannelWebhooks, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.ServiceAuth(cfg.Auth, logg))
			if deps.IdempotencyStore != nil {
				r.Use(middleware.Idempotency(deps.IdempotencyStore, logg))
			}

			readInventory := middleware.RequireScope(pkgauth.ScopeInventoryRead, logg)
			writeInventory := middleware.RequireScope(pkgauth.ScopeInventoryWrite, logg)
			holds := middleware.RequireScope(pkgauth.ScopeReservations, logg)

			r.Route("/inventory", func(r chi.Router) {
				r.With(readInventory).Get("/low-stock", inventorycontrollers.LowStock(deps.Inventory, logg))
				r.With(writeInventory).Post("/bulk", inventorycontrollers.Bulk(deps.Inventory, logg))
				r.Route("/{itemId}", func(r chi.Router) {
					r.With(readInventory).Get("/", inventorycontrollers.Get(deps.Inventory, logg))
					r.With(writeInventory).Put("/", inventorycontrollers.Apply(deps.Inventory, logg))
					r.With(readInventory).Get("/logs", inventorycontrollers.Logs(deps.Inventory, logg))
					r.With(holds).Get("/reservations", reservationcontrollers.Active(deps.Reservations, logg))
				})
			})

			r.Route("/reservations", func(r chi.Router) {
				r.Use(holds)
				r.Post("/", reservationcontrollers.Reserve(deps.Reservations, logg))
				r.Get("/{reservationId}", reservationcontrollers.Get(deps.Reservations, logg))
				r.Post("/{reservationId}/release", reservationcontrollers.Release(deps.Reservations, logg))
			})
		})
	})

	return r
}
