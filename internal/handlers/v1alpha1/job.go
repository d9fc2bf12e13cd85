package v1alpha1

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/scheduler"
	"github.com/conveyor-dev/conveyor/internal/service"
)

// (GET /api/v1/jobs)
func (s *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := service.ListJobsParams{
		SortBy: q.Get("sortBy"),
		Skip:   queryInt(r, "skip", 0),
		Limit:  queryPageSize(r),
	}
	if statuses, ok := q["status"]; ok {
		params.Statuses = statuses
	}

	result, err := s.jobSrv.ListJobs(r.Context(), params)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// (POST /api/v1/jobs)
func (s *ServiceHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	req := &api.JobRequest{}
	if err := render.DecodeJSON(r.Body, req); err != nil {
		renderBadRequest(w, r, "invalid job request body: "+err.Error())
		return
	}

	job, err := s.jobSrv.CreateJob(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, job)
}

func jobIDFromRequest(r *http.Request) (api.JobID, error) {
	return api.ParseJobID(chi.URLParam(r, "id"))
}

// (GET /api/v1/jobs/{id})
func (s *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDFromRequest(r)
	if err != nil {
		renderBadRequest(w, r, err.Error())
		return
	}

	job, err := s.jobSrv.GetJob(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, job)
}

// (GET /api/v1/jobs/{id}/tags)
func (s *ServiceHandler) GetJobTags(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDFromRequest(r)
	if err != nil {
		renderBadRequest(w, r, err.Error())
		return
	}

	tags, err := s.jobSrv.GetJobTags(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, tags)
}

// (POST /api/v1/jobs/{id}/abort)
func (s *ServiceHandler) AbortJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDFromRequest(r)
	if err != nil {
		renderBadRequest(w, r, err.Error())
		return
	}

	job, err := s.jobSrv.CancelJob(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, job)
}

type restartRequest struct {
	RestartFrom int `json:"restartFrom"`
}

// (POST /api/v1/jobs/{id}/restart)
// The stage may come from the restartFrom query parameter or the body;
// without either the job restarts from its last stage.
func (s *ServiceHandler) RestartJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDFromRequest(r)
	if err != nil {
		renderBadRequest(w, r, err.Error())
		return
	}

	req := restartRequest{RestartFrom: scheduler.RestartFromLast}
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		renderBadRequest(w, r, "invalid restart request body: "+err.Error())
		return
	}
	if raw := r.URL.Query().Get("restartFrom"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			renderBadRequest(w, r, "invalid restartFrom parameter: "+err.Error())
			return
		}
		req.RestartFrom = v
	}

	job, err := s.jobSrv.RestartJob(r.Context(), id, req.RestartFrom)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, job)
}
