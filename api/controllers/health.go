package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/bizmanager/ledgersync/api/responses"
	"github.com/bizmanager/ledgersync/pkg/config"
	"github.com/bizmanager/ledgersync/pkg/logger"
)

// Pinger is the health-check surface a wired dependency exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz reports process liveness plus the state of each wired dependency.
// A down dependency degrades the report but keeps the endpoint at 200 so load
// balancers do not flap the whole service on a redis blip.
func Healthz(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok", "env": cfg.App.Env}
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				status[name] = "down"
				status["status"] = "degraded"
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "healthcheck failed", err)
				}
				continue
			}
			status[name] = "up"
		}
		responses.WriteSuccess(w, status)
	}
}
