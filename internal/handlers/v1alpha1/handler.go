// Package v1alpha1 exposes the scheduler's query and control surface
// over HTTP. Handlers decode the request, call into the service layer
// and translate typed service errors onto status codes.
package v1alpha1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/conveyor-dev/conveyor/internal/service"
)

type ServiceHandler struct {
	jobSrv *service.JobService
	logSrv *service.LogService
}

func NewServiceHandler(jobService *service.JobService, logService *service.LogService) *ServiceHandler {
	return &ServiceHandler{
		jobSrv: jobService,
		logSrv: logService,
	}
}

// RegisterRoutes mounts the v1alpha1 surface on the given router.
func (s *ServiceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Get("/", s.ListJobs)
		r.Post("/", s.CreateJob)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetJob)
			r.Get("/log", s.GetJobLog)
			r.Get("/tags", s.GetJobTags)
			r.Post("/abort", s.AbortJob)
			r.Post("/restart", s.RestartJob)
		})
	})
	r.Route("/api/v1/system/displays", func(r chi.Router) {
		r.Get("/systemLog", s.ListSystemLogs)
		r.Get("/jobLog", s.ListJobLogs)
	})
}

type errorResponse struct {
	Message string `json:"message"`
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, new(*service.ErrResourceNotFound)):
		status = http.StatusNotFound
	case errors.As(err, new(*service.ErrInvalidRequest)):
		status = http.StatusBadRequest
	case errors.As(err, new(*service.ErrJobStateConflict)):
		status = http.StatusConflict
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Message: err.Error()})
}

func renderBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Message: message})
}

// queryPageSize reads the listing window size. pageSize is the
// documented parameter; limit is accepted as an alias.
func queryPageSize(r *http.Request) int {
	if v := queryInt(r, "pageSize", 0); v > 0 {
		return v
	}
	return queryInt(r, "limit", 0)
}

// queryInt reads an integer query parameter, falling back to def when
// absent or unparsable.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
