package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bizmanager/ledgersync/api/controllers"
	"github.com/bizmanager/ledgersync/api/middleware"
	"github.com/bizmanager/ledgersync/internal/items"
	"github.com/bizmanager/ledgersync/pkg/config"
	"github.com/bizmanager/ledgersync/pkg/logger"
)

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	Config       *config.Config
	Logger       *logger.Logger
	ItemsService items.Service
	Registry     *prometheus.Registry
	Pingers      map[string]controllers.Pinger
}

// NewRouter assembles the store server's HTTP surface. Every ledger route
// sits behind the shared token; health and metrics stay open.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
	)

	r.Get("/healthz", controllers.Healthz(deps.Config, deps.Logger, deps.Pingers))

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/ledgers/{kind}", func(r chi.Router) {
		r.Use(middleware.TokenAuth(deps.Config.Store.Token, deps.Logger))
		r.Get("/items", controllers.ListLedgerItems(deps.ItemsService, deps.Logger))
		r.Post("/items", controllers.CreateLedgerItem(deps.ItemsService, deps.Logger))
		r.Patch("/items/{itemID}", controllers.UpdateLedgerItemField(deps.ItemsService, deps.Logger))
		r.Delete("/items/{itemID}", controllers.DeleteLedgerItem(deps.ItemsService, deps.Logger))
		r.Post("/reorder", controllers.ReorderLedgerItems(deps.ItemsService, deps.Logger))
	})

	return r
}
