package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/health", s.handleHealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireTenant)
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Put("/jobs/{jobID}", s.handleUpdateJob)
		r.Delete("/jobs/{jobID}", s.handleDeleteJob)
		r.Post("/jobs/{jobID}/execute", s.handleExecuteJob)
		r.Post("/scrape", s.handleManualScrape)
		r.Get("/data", s.handleListRecords)
		r.Get("/analytics", s.handleAnalytics)
	})

	return r
}
