package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"bridgeproxy/native/proxy"
	"bridgeproxy/observability"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// Options tunes the HTTP surface. Zero values fall back to permissive
// defaults suitable for local development.
type Options struct {
	Network           string
	Logger            *slog.Logger
	RequestsPerSecond float64
	Burst             int
}

// Server exposes the dispatch engine over HTTP.
type Server struct {
	engine  *proxy.Engine
	network string
	logger  *slog.Logger
	metrics *observability.ProxyMetrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewServer wraps the engine with the HTTP API.
func NewServer(engine *proxy.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rps := rate.Limit(opts.RequestsPerSecond)
	if rps <= 0 {
		rps = rate.Limit(50)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 100
	}
	return &Server{
		engine:   engine,
		network:  opts.Network,
		logger:   logger,
		metrics:  observability.Proxy(),
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.rateLimit)

		v1.Post("/dispatch/token", s.handleDispatchToken)
		v1.Post("/dispatch/native", s.handleDispatchNative)

		v1.Post("/fees/collect", s.handleCollectIntegrator)
		v1.Post("/fees/collect-for", s.handleCollectIntegratorFor)
		v1.Post("/fees/collect-platform", s.handleCollectPlatform)
		v1.Get("/fees/config", s.handleFeeConfig)
		v1.Get("/fees/balance", s.handleFeeBalance)

		v1.Get("/status", s.handleStatus)
		v1.Get("/providers", s.handleProviders)
		v1.Get("/integrators/{address}", s.handleIntegrator)

		v1.Route("/admin", func(admin chi.Router) {
			admin.Post("/pause", s.handlePause)
			admin.Post("/unpause", s.handleUnpause)
			admin.Post("/sweep", s.handleSweep)
			admin.Post("/integrator", s.handleSetIntegrator)
			admin.Post("/bounds/min", s.handleSetMin)
			admin.Post("/bounds/max", s.handleSetMax)
			admin.Post("/fixed-fee", s.handleSetFixedFee)
			admin.Post("/providers/add", s.handleAddProvider)
			admin.Post("/providers/remove", s.handleRemoveProvider)
			admin.Post("/managers/grant", s.handleGrantManager)
			admin.Post("/managers/revoke", s.handleRevokeManager)
			admin.Post("/transfer-admin", s.handleTransferAdmin)
		})
	})
	return r
}

// Start serves the API until the listener fails.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("starting proxy HTTP server", slog.String("addr", addr))
	return server.ListenAndServe()
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	httpMetrics := observability.HTTP()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if ctx := chi.RouteContext(r.Context()); ctx != nil {
			if pattern := ctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		httpMetrics.Observe(route, r.Method, rec.status, time.Since(start))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiterFor(clientKey(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiterFor(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(s.rps, s.burst)
		s.limiters[key] = limiter
	}
	return limiter
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decode(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorPayload struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorPayload{Error: err.Error()})
}

// statusFor maps engine errors onto HTTP status codes. Unknown errors are
// treated as internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, proxy.ErrNotAManager), errors.Is(err, proxy.ErrNotAnAdmin):
		return http.StatusForbidden
	case errors.Is(err, proxy.ErrPaused), errors.Is(err, proxy.ErrNotPaused):
		return http.StatusConflict
	case errors.Is(err, proxy.ErrDispatchInProgress):
		return http.StatusConflict
	case errors.Is(err, proxy.ErrExternalCallFailed), errors.Is(err, proxy.ErrDifferentAmountSpent):
		return http.StatusBadGateway
	case errors.Is(err, proxy.ErrProviderNotAvailable),
		errors.Is(err, proxy.ErrRouterNotAvailable),
		errors.Is(err, proxy.ErrAmountOutOfBounds),
		errors.Is(err, proxy.ErrWrongNativeValue),
		errors.Is(err, proxy.ErrFeeTooHigh),
		errors.Is(err, proxy.ErrShareTooHigh),
		errors.Is(err, proxy.ErrMinMustBeLowerThanMax),
		errors.Is(err, proxy.ErrMaxMustBeBiggerThanMin),
		errors.Is(err, proxy.ErrProviderAlreadyListed),
		errors.Is(err, proxy.ErrSweepExceedsFreeBalance),
		errors.Is(err, proxy.ErrZeroAdmin):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) engineError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("engine operation failed", slog.String("op", op), slog.Any("error", err))
	}
	writeError(w, status, err)
}
