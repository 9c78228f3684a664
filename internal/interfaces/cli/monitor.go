package cli

import (
	"net/http"
	"time"

	"github.com/turtacn/hmd/internal/application/structgen"
	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
	httpapi "github.com/turtacn/hmd/internal/interfaces/http"
	"github.com/turtacn/hmd/internal/interfaces/http/handlers"
	"github.com/turtacn/hmd/internal/interfaces/http/middleware"
	"github.com/turtacn/hmd/pkg/errors"
)

const monitorShutdownTimeout = 5 * time.Second

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// metricsHandler is implemented by RunMetrics that can be scraped.
type metricsHandler interface {
	Handler() http.Handler
}

// startMonitor serves the run monitor for the given backends on addr.
func startMonitor(addr string, b structgen.Backends, log logging.Logger) (*httpapi.Server, error) {
	checkers := make([]handlers.HealthChecker, 0, len(b.Probes))
	for _, p := range b.Probes {
		checkers = append(checkers, p)
	}

	cfg := httpapi.RouterConfig{
		HealthHandler: handlers.NewHealthHandler(Version, checkers...),
		Logger:        log.Named("http"),
		Logging:       middleware.DefaultLoggingConfig(),
	}
	if m, ok := b.Metrics.(metricsHandler); ok {
		cfg.Metrics = m.Handler()
	}

	srv := httpapi.NewServer(addr, httpapi.NewRouter(cfg), log.Named("http"))
	if err := srv.Start(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to start monitor").WithDetail(addr)
	}
	return srv, nil
}
