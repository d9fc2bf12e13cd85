package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
)

// (GET /api/v1/system/displays/systemLog)
func (s *ServiceHandler) ListSystemLogs(w http.ResponseWriter, r *http.Request) {
	result, err := s.logSrv.ListSystemLogs(r.Context(), queryInt(r, "skip", 0), queryPageSize(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// (GET /api/v1/jobs/{id}/log)
func (s *ServiceHandler) GetJobLog(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDFromRequest(r)
	if err != nil {
		renderBadRequest(w, r, err.Error())
		return
	}

	// listing an unknown job yields an empty window, not a 404: log
	// entries may outlive or precede the job row under at-least-once
	// delivery
	result, err := s.logSrv.ListJobLogs(r.Context(), &id, queryInt(r, "skip", 0), queryPageSize(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// (GET /api/v1/system/displays/jobLog)
func (s *ServiceHandler) ListJobLogs(w http.ResponseWriter, r *http.Request) {
	var jobID *api.JobID
	if raw := r.URL.Query().Get("jobId"); raw != "" {
		id, err := api.ParseJobID(raw)
		if err != nil {
			renderBadRequest(w, r, err.Error())
			return
		}
		jobID = &id
	}

	result, err := s.logSrv.ListJobLogs(r.Context(), jobID, queryInt(r, "skip", 0), queryPageSize(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}
