package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gql "github.com/99designs/gqlgen/graphql"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/printbridge/internal/fulfillment"
	"github.com/tournevent/printbridge/internal/graphql"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

// Server is the HTTP server for the fulfillment bridge.
type Server struct {
	port     int
	service  *fulfillment.Service
	executor *graphql.Executor
	logger   *otelzap.Logger
	gatherer prometheus.Gatherer
	webhooks *webhookValidator
	secret   []byte
	router   chi.Router
}

// Config holds server configuration.
type Config struct {
	Port int
	// WebhookSecret enables HS256 bearer token checks on webhooks when set.
	WebhookSecret string
}

// New creates a new server instance.
func New(cfg Config, service *fulfillment.Service, logger *otelzap.Logger, gatherer prometheus.Gatherer) (*Server, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	executor, err := graphql.NewExecutor(graphql.NewResolver(service, logger))
	if err != nil {
		return nil, err
	}
	webhooks, err := newWebhookValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		port:     cfg.Port,
		service:  service,
		executor: executor,
		logger:   logger,
		gatherer: gatherer,
		webhooks: webhooks,
	}
	if cfg.WebhookSecret != "" {
		s.secret = []byte(cfg.WebhookSecret)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/health", s.handleHealth)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// GraphQL endpoint
	r.HandleFunc("/graphql", s.handleGraphQL)

	// Storefront webhooks
	r.Route("/webhooks", func(r chi.Router) {
		if s.secret != nil {
			r.Use(s.authenticate)
		}
		r.Post("/orders", s.handleOrderWebhook)
		r.Post("/products", s.handleProductWebhook)
		r.Post("/orders/{orderID}/status-check", s.handleStatusCheckWebhook)
	})

	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		s.logger.Ctx(r.Context()).Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, graphQLError("Method not allowed, use POST"))
		return
	}

	var params gql.RawParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, graphQLError("Invalid JSON: "+err.Error()))
		return
	}

	resp := s.executor.Execute(r.Context(), &params)

	status := http.StatusOK
	if resp.Data == nil && len(resp.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func graphQLError(message string) *gql.Response {
	return &gql.Response{Errors: gqlerror.List{{Message: message}}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
