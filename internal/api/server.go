// Package api exposes the bulk operation engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/kaizen2025/bulkops/internal/audit"
	"github.com/kaizen2025/bulkops/internal/bulk/executor"
	"github.com/kaizen2025/bulkops/internal/bulk/recovery"
	"github.com/kaizen2025/bulkops/internal/health"
	"github.com/kaizen2025/bulkops/internal/infra/storage"
)

// Server hosts the bulk action API plus health and metrics endpoints.
type Server struct {
	handler *Handler
	server  *http.Server
}

// NewServer wires the routes. rateLimitRPS 0 disables rate limiting.
func NewServer(
	exec *executor.Executor,
	coordinator *recovery.Coordinator,
	audits *audit.Service,
	prefs storage.PreferenceStore,
	monitor *health.Monitor,
	port int,
	rateLimitRPS float64,
	rateBurst int,
) *Server {
	h := NewHandler(exec, coordinator, audits, prefs)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/bulk-actions", h.handleExecute)
	mux.HandleFunc("POST /api/bulk-actions/validate", h.handleValidate)
	mux.HandleFunc("GET /api/bulk-actions/audit", h.handleAuditList)
	mux.HandleFunc("GET /api/bulk-actions/audit/stats", h.handleAuditStats)
	mux.HandleFunc("GET /api/bulk-actions/{id}/recovery", h.handleRecoveryOffers)
	mux.HandleFunc("POST /api/bulk-actions/{id}/recovery", h.handleRecoveryApply)
	mux.HandleFunc("GET /api/preferences/{actor}/{key}", h.handlePreferenceGet)
	mux.HandleFunc("PUT /api/preferences/{actor}/{key}", h.handlePreferenceSet)

	mux.HandleFunc("/health", monitor.HandleHealth)
	mux.HandleFunc("/health/detailed", monitor.HandleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	var limiter *rate.Limiter
	if rateLimitRPS > 0 {
		if rateBurst <= 0 {
			rateBurst = int(rateLimitRPS)
		}
		limiter = rate.NewLimiter(rate.Limit(rateLimitRPS), rateBurst)
	}

	return &Server{
		handler: h,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: requestLog(rateLimit(limiter, mux)),
		},
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
