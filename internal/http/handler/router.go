// Package handler serves health, metrics and run results over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires /health, /ready, /metrics and the run routes.
func NewRouter(runs ResultProvider, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", HealthCheckHandler)
	r.Get("/ready", ReadyHandler(runs))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	NewRunsHandler(runs).RegisterRoutes(r)
	return r
}
