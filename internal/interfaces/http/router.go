package http

import (
	"net/http"

	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/hmd/internal/interfaces/http/handlers"
	"github.com/turtacn/hmd/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the monitor handlers.
type RouterConfig struct {
	HealthHandler *handlers.HealthHandler
	// Metrics serves /metrics; nil when metrics are disabled.
	Metrics http.Handler
	Logger  logging.Logger
	Logging middleware.LoggingConfig
}

// NewRouter builds the monitor route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(mux)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	var h http.Handler = mux
	if cfg.Logger != nil {
		h = middleware.RequestLogging(cfg.Logger, cfg.Logging)(h)
	}
	return middleware.Recoverer(cfg.Logger)(h)
}
