// Package server implements the HTTP transport exposing SemanticSearch.
//
// Grounded on _examples/kadirpekel-hector/pkg/server/http.go's route
// setup / graceful Start-Shutdown structure (health check first, the
// middleware chain applied outermost-to-innermost: observability ->
// logging -> cors -> routes) and pkg/transport/http_metrics_middleware.go's
// chi-RouteContext-based metrics middleware (no endpoint dropped the a2a
// surface this module doesn't have, but the instrumentation idiom is kept
// verbatim), re-routed from a multi-agent JSON-RPC surface to one
// POST /v1/search endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/veyron-labs/wikiq/internal/observability"
	"github.com/veyron-labs/wikiq/internal/pipeline"
)

// requestIDKey is the context key under which requestIDMiddleware stores
// the generated ID.
type requestIDKey struct{}

// requestIDFrom extracts the request ID a prior requestIDMiddleware call
// stashed in ctx, or "" if none is present.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDMiddleware assigns every request a uuid, exposed to handlers
// and log lines via requestIDFrom and echoed back in the X-Request-Id
// response header. Grounded on the teacher's uuid.New().String() ID
// generation (pkg/task/task.go, pkg/session/session.go); chi's own
// middleware.RequestID uses a process-local counter, not a globally
// unique value, which matters once search traffic is logged centrally
// across more than one wikiqd instance.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Querier is the capability *pipeline.Pipeline satisfies: run one query
// end to end and render its text report.
type Querier interface {
	Query(ctx context.Context, req pipeline.Request) (string, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Server is the HTTP transport around a Querier.
type Server struct {
	cfg     Config
	querier Querier
	metrics *observability.Metrics
	tracer  trace.Tracer
	http    *http.Server
}

func New(cfg Config, querier Querier, metrics *observability.Metrics) *Server {
	cfg.SetDefaults()
	return &Server{
		cfg:     cfg,
		querier: querier,
		metrics: metrics,
		tracer:  observability.GetTracer("wikiq/server"),
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	if reg := s.metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	r.Post("/v1/search", s.handleSearch)

	return r
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully within Config.ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", s.cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	slog.Info("HTTP server shutting down")
	return s.http.Shutdown(shutdownCtx)
}

type searchRequest struct {
	Query string `json:"query"`
	Space string `json:"space,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Report string `json:"report"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return
	}

	report, err := s.querier.Query(r.Context(), pipeline.Request{
		QueryText: req.Query,
		Space:     req.Space,
		Limit:     pipeline.NormalizeLimit(req.Limit),
	})
	if err != nil {
		if errors.Is(r.Context().Err(), context.Canceled) {
			return // client disconnected; nothing useful to write back
		}
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(searchResponse{Report: report})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// corsMiddleware allows any origin, matching the teacher's permissive
// development default (this engine has no browser-facing UI of its own).
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start),
			"request_id", requestIDFrom(r.Context()),
		)
	})
}

// responseWriter captures the status code so metricsMiddleware can label
// the request after the handler runs.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// metricsMiddleware instruments every request with a trace span and, via
// chi's RouteContext, a Prometheus histogram labeled by the matched route
// pattern rather than the raw (high-cardinality) path.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := s.tracer.Start(r.Context(), "http.request",
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			),
		)
		defer span.End()
		r = r.WithContext(ctx)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		span.SetAttributes(
			attribute.Int("http.status_code", wrapped.statusCode),
			attribute.Int64("http.duration_ms", duration.Milliseconds()),
		)
		if wrapped.statusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(wrapped.statusCode))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		if s.metrics != nil {
			pattern := r.URL.Path
			if rctx := chi.RouteContext(ctx); rctx != nil && rctx.RoutePattern() != "" {
				pattern = rctx.RoutePattern()
			}
			s.metrics.RecordStage("http:"+pattern, duration, 0)
		}
	})
}
