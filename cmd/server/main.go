package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/claims/internal/bootstrap"
	"github.com/liamcoop/claims/internal/config"
	"github.com/liamcoop/claims/internal/logger"
	"github.com/liamcoop/claims/pipeline"
	"github.com/liamcoop/claims/policy"
	"github.com/liamcoop/claims/rules"
	"github.com/liamcoop/claims/store"
	"github.com/liamcoop/claims/worker"
)

type Server struct {
	svc     *bootstrap.Service
	cfg     *config.Config
	jobs    *worker.Pool
	limiter *worker.Limiter
	router  *chi.Mux
	started time.Time
}

// NewServer wires the HTTP API over an assembled service and starts the
// background stage workers
func NewServer(svc *bootstrap.Service) *Server {
	cfg := svc.Config

	s := &Server{
		svc:     svc,
		cfg:     cfg,
		started: time.Now(),
	}

	s.jobs = worker.NewPool(cfg.Pipeline.Workers,
		worker.WithQueueSize(cfg.Pipeline.QueueSize),
		worker.WithResultHandler(func(r worker.Result) {
			if err := r.GetError(); err != nil {
				logger.Debug("Background stage finished with error", "error", err)
			}
		}),
	)
	s.jobs.Start()

	if cfg.RateLimit.Enabled {
		s.limiter = worker.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.rateLimit)
	r.Use(middleware.Timeout(s.cfg.Server.WriteTimeout))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/metrics", s.handleMetrics)

	// Stateless evaluation
	r.Post("/api/v1/evaluate", s.handleEvaluate)

	r.Route("/api/v1/claims", func(r chi.Router) {
		r.Get("/", s.handleListClaims)
		r.Post("/", s.handleCreateClaim)

		r.Route("/{claimId}", func(r chi.Router) {
			r.Get("/", s.handleGetClaim)
			r.Post("/classify", s.handleClassify)
			r.Post("/extract", s.handleExtract)
			r.Post("/evaluate", s.handleEvaluateClaim)
			r.Post("/process", s.handleProcess)
			r.Get("/report", s.handleReport)
		})
	})

	r.Route("/api/v1/policies", func(r chi.Router) {
		r.Get("/", s.handleListPolicies)
		r.Get("/{name}", s.handleGetPolicy)
		r.Put("/{name}", s.handlePutPolicy)
		r.Delete("/{name}", s.handleDeletePolicy)
	})

	r.Route("/api/v1/risk-rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Get("/{ruleId}", s.handleGetRule)
		r.Put("/{ruleId}", s.handleUpdateRule)
		r.Delete("/{ruleId}", s.handleDeleteRule)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close drains background stages until ctx ends
func (s *Server) Close(ctx context.Context) error {
	return s.jobs.Drain(ctx)
}

// requestLogger logs each request through the structured logger
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// rateLimit refuses clients that exceed their request budget
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientKey(r)) {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug("Failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}

	switch {
	case status >= 500:
		logger.ErrorHttp5xx()
		logger.Error("Request failed", "status", status, "error", message, "details", response["details"])
	case status >= 400:
		logger.WarnHttp4xx(status)
	}

	respondJSON(w, status, response)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, policy.ErrNotFound),
		errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrInvalidTransition),
		errors.Is(err, pipeline.ErrBusy),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrExists),
		errors.Is(err, rules.ErrRuleExists),
		errors.Is(err, policy.ErrDefaultPolicy):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrNoDocuments):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondDomainError(w http.ResponseWriter, message string, err error) {
	respondError(w, statusFor(err), message, err)
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}

	svc, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		logger.Fatal("Failed to start claim pipeline", "error", err)
	}
	defer svc.Close()

	server := NewServer(svc)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Server starting", "addr", cfg.Server.Addr, "config", cfg.File)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := server.Close(ctx); err != nil {
		logger.Warn("Background stages cancelled at shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
