package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/gameserver/internal/api/apierr"
	"github.com/mcoot/gameserver/internal/api/response"
	"github.com/mcoot/gameserver/internal/dispatch"
	"github.com/mcoot/gameserver/internal/middleware"
	"github.com/mcoot/gameserver/internal/obs"
	"github.com/mcoot/gameserver/internal/storage"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	ServerName  string
	StorageType string
	Storage     storage.Storage
	Dispatcher  *dispatch.Dispatcher
	WebSocket   http.Handler
	Metrics     *obs.Metrics
}

// NewRouter creates the HTTP router: the websocket endpoint, the JSON API
// and the metrics endpoint
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(apierr.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(apierr.MethodNotAllowed)

	r.Use(middleware.Recovery(cfg.Logger, apierr.PanicHandler))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Instrument)
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	// Game protocol
	r.Handle("/ws", cfg.WebSocket).Methods(http.MethodGet)

	// JSON API
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", healthHandler(cfg)).Methods(http.MethodGet)
	api.HandleFunc("/stats", statsHandler(cfg.Dispatcher)).Methods(http.MethodGet)

	return r
}

// healthHandler reports ok, or 503 when the storage backend is unreachable
func healthHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := response.Health{
			Status:  "ok",
			Server:  cfg.ServerName,
			Storage: cfg.StorageType,
		}

		if pinger, ok := cfg.Storage.(storage.Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				cfg.Logger.Warn("health check failed", slog.String("error", err.Error()))
				body.Status = "unavailable"
				response.JSON(w, http.StatusServiceUnavailable, body)
				return
			}
		}

		response.JSON(w, http.StatusOK, body)
	}
}

func statsHandler(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats := d.Stats()
		response.JSON(w, http.StatusOK, response.Stats{
			Connections: stats.Connections,
			Rooms:       stats.Rooms,
		})
	}
}
