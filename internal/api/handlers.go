package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/webintel-service/internal/domain"
	"github.com/user/webintel-service/internal/executor"
	"github.com/user/webintel-service/internal/service"
)

type ctxKey int

const tenantKey ctxKey = iota

// requireTenant scopes every request to the tenant named in the
// X-Tenant-ID header.
func (s *Server) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get("X-Tenant-ID")
		if tenant == "" {
			s.respondWithError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey, tenant)))
	})
}

func tenantFrom(r *http.Request) string {
	tenant, _ := r.Context().Value(tenantKey).(string)
	return tenant
}

type createJobRequest struct {
	Name      string            `json:"name"`
	Type      domain.JobType    `json:"type"`
	URL       string            `json:"url"`
	Frequency domain.Frequency  `json:"frequency"`
	Config    map[string]string `json:"config,omitempty"`
}

type jobResponse struct {
	Job     *domain.ScraperJob `json:"job"`
	Warning string             `json:"warning,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, warning, err := s.svc.CreateScraperJob(r.Context(), executor.CreateJobParams{
		TenantID:  tenantFrom(r),
		Name:      req.Name,
		Type:      req.Type,
		URL:       req.URL,
		Frequency: req.Frequency,
		Config:    req.Config,
	})
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondWithJSON(w, http.StatusCreated, jobResponse{Job: job, Warning: warning})
}

type updateJobRequest struct {
	Name      *string           `json:"name,omitempty"`
	URL       *string           `json:"url,omitempty"`
	Frequency *domain.Frequency `json:"frequency,omitempty"`
	Config    map[string]string `json:"config,omitempty"`
	Status    *domain.JobStatus `json:"status,omitempty"`
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var req updateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, warning, err := s.svc.UpdateScraperJob(r.Context(), tenantFrom(r), chi.URLParam(r, "jobID"), service.UpdateJobParams{
		Name:      req.Name,
		URL:       req.URL,
		Frequency: req.Frequency,
		Config:    req.Config,
		Status:    req.Status,
	})
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Job not found")
			return
		}
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondWithJSON(w, http.StatusOK, jobResponse{Job: job, Warning: warning})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	err := s.svc.DeleteScraperJob(r.Context(), tenantFrom(r), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("failed to delete job", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not delete job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.svc.GetScraperJobs(r.Context(), tenantFrom(r))
	if err != nil {
		s.logger.Error("failed to list jobs", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not list jobs")
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleExecuteJob(w http.ResponseWriter, r *http.Request) {
	record, err := s.svc.ExecuteJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			s.respondWithError(w, http.StatusNotFound, "Job not found")
		case errors.Is(err, domain.ErrJobNotActive):
			s.respondWithError(w, http.StatusConflict, "Job is not active")
		case errors.Is(err, domain.ErrJobRunning):
			s.respondWithError(w, http.StatusConflict, "Job is already running")
		default:
			s.logger.Error("job execution failed", zap.Error(err))
			s.respondWithError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	s.respondWithJSON(w, http.StatusOK, record)
}

type manualScrapeRequest struct {
	Type   domain.JobType    `json:"type"`
	URL    string            `json:"url"`
	Config map[string]string `json:"config,omitempty"`
}

func (s *Server) handleManualScrape(w http.ResponseWriter, r *http.Request) {
	var req manualScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := s.svc.PerformManualScrape(r.Context(), tenantFrom(r), req.Type, req.URL, req.Config)
	if err != nil {
		s.logger.Error("manual scrape failed", zap.String("url", req.URL), zap.Error(err))
		s.respondWithError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondWithJSON(w, http.StatusOK, record)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	var typ *domain.JobType
	if t := r.URL.Query().Get("type"); t != "" {
		jt := domain.JobType(t)
		if !jt.Valid() {
			s.respondWithError(w, http.StatusBadRequest, "Unknown type filter")
			return
		}
		typ = &jt
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := s.svc.GetScrapedData(r.Context(), tenantFrom(r), typ, limit)
	if err != nil {
		s.logger.Error("failed to list records", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not list records")
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.svc.GetScrapingAnalytics(r.Context(), tenantFrom(r))
	if err != nil {
		s.logger.Error("failed to build analytics", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not build analytics")
		return
	}
	s.respondWithJSON(w, http.StatusOK, analytics)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)

	if err := s.pgStore.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	if err := s.redisStore.Ping(ctx); err != nil {
		healthStatus["redis"] = "unhealthy"
		s.logger.Error("health check failed for redis", zap.Error(err))
	} else {
		healthStatus["redis"] = "healthy"
	}

	if healthStatus["postgres"] != "healthy" || healthStatus["redis"] != "healthy" {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}
