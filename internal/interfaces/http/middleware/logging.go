// Package middleware wraps the monitor handlers with request logging and
// panic recovery.
package middleware

import (
	"net/http"
	"time"

	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
)

// Middleware decorates a handler.
type Middleware func(http.Handler) http.Handler

// LoggingConfig tunes RequestLogging.
type LoggingConfig struct {
	// SkipPaths are served without a log line.
	SkipPaths []string
	// SlowThreshold > 0 raises slower successful requests to warn.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig keeps probe and scrape traffic out of the run log.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: time.Second,
	}
}

// Messages logged per request, by outcome.
const (
	MsgServed      = "monitor request served"
	MsgSlow        = "monitor request slow"
	MsgClientError = "monitor request rejected"
	MsgServerError = "monitor request failed"
	MsgPanic       = "monitor handler panicked"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += int64(n)
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// code is the status sent, 200 when the handler wrote nothing.
func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// RequestLogging logs one line per completed request.
func RequestLogging(logger logging.Logger, cfg LoggingConfig) Middleware {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			status := rec.code()
			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", status),
				logging.Int64("bytes", rec.size),
				logging.Duration("elapsed", elapsed),
			}
			switch {
			case status >= http.StatusInternalServerError:
				logger.Error(MsgServerError, fields...)
			case status >= http.StatusBadRequest:
				logger.Warn(MsgClientError, fields...)
			case cfg.SlowThreshold > 0 && elapsed >= cfg.SlowThreshold:
				logger.Warn(MsgSlow, fields...)
			default:
				logger.Debug(MsgServed, fields...)
			}
		})
	}
}

// Recoverer answers 500 when a handler panics.
func Recoverer(logger logging.Logger) Middleware {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error(MsgPanic, logging.String("path", r.URL.Path), logging.Any("panic", v))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
