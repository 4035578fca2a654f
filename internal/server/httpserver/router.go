package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/rafter-go/internal/server/httpserver/handler"
	"github.com/yndnr/rafter-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the admin router.
type RouterConfig struct {
	// Status supplies the data for /status and /healthz.
	Status handler.StatusSource

	// Metrics is served on /metrics. Nil disables the endpoint.
	Metrics *metric.Registry

	// Version is reported by /healthz.
	Version string

	// AllowList restricts /status and /metrics to these IPs or CIDR blocks.
	// /healthz is always open.
	AllowList []string

	Logger *slog.Logger
}

// NewRouter builds the admin HTTP handler.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := handler.New(cfg.Status, cfg.Version, logger)

	common := []Middleware{RequestID(), Recover(logger), AccessLog(logger)}
	restricted := append(common[:len(common):len(common)], NetworkACL(cfg.AllowList, logger))

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", Chain(h, common...))
	mux.Handle("GET /status", Chain(h, restricted...))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics.Handler(), restricted...))
	}
	return mux
}
