package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
)

const shutdownTimeout = 5 * time.Second

// SessionCounter reports how many clients are connected.
type SessionCounter interface {
	Sessions() int
}

// HTTPService serves Prometheus metrics and a health probe.
type HTTPService struct {
	cfg    config.MetricsConfig
	srv    *http.Server
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
}

// NewHTTPService builds the metrics and health HTTP service.
//
// Precondition: gatherer, counter and logger must be non-nil.
// Postcondition: Returns a service ready to Start.
func NewHTTPService(cfg config.MetricsConfig, gatherer prometheus.Gatherer, counter SessionCounter, logger *zap.Logger) *HTTPService {
	return &HTTPService{
		cfg:    cfg,
		srv:    &http.Server{Handler: NewRouter(gatherer, counter), ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
}

// NewRouter returns the chi router exposing GET /metrics and GET /healthz.
func NewRouter(gatherer prometheus.Gatherer, counter SessionCounter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthStatus{Status: "ok", Sessions: counter.Sessions()})
	})
	return r
}

type healthStatus struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// Start listens on the configured address and serves until Stop.
func (h *HTTPService) Start() error {
	ln, err := net.Listen("tcp", h.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.cfg.Addr(), err)
	}
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		ln.Close()
		return nil
	}
	h.listener = ln
	h.mu.Unlock()

	h.logger.Info("metrics service listening", zap.String("addr", ln.Addr().String()))
	if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics: %w", err)
	}
	return nil
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (h *HTTPService) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Warn("metrics service shutdown", zap.Error(err))
	}
}

// Addr returns the bound address, or empty string if not yet listening.
func (h *HTTPService) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}
