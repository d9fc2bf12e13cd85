package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/scheduler"
	"github.com/conveyor-dev/conveyor/internal/store"
)

const defaultPageSize = 100

type JobService struct {
	store       store.Store
	engine      *scheduler.Engine
	validate    *validator.Validate
	maxPageSize int
}

func NewJobService(st store.Store, engine *scheduler.Engine, maxPageSize int) *JobService {
	if maxPageSize <= 0 {
		maxPageSize = defaultPageSize
	}
	return &JobService{
		store:       st,
		engine:      engine,
		validate:    validator.New(),
		maxPageSize: maxPageSize,
	}
}

// ListJobsParams narrows and windows the job listing. Zero values mean
// no status filter, default sort, first page.
type ListJobsParams struct {
	Statuses []string
	SortBy   string
	Skip     int
	Limit    int
}

func (s *JobService) clampWindow(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	return skip, limit
}

// ListJobs returns one window of job digests, most recently touched
// first, plus the filtered total.
func (s *JobService) ListJobs(ctx context.Context, params ListJobsParams) (api.PaginatedResult[api.JobDigest], error) {
	skip, limit := s.clampWindow(params.Skip, params.Limit)

	var filter *store.JobQueryFilter
	if len(params.Statuses) > 0 {
		filter = store.NewJobQueryFilter().ByStatus(params.Statuses...)
	}
	opts := store.NewJobQueryOptions().
		WithSortOrder(store.ParseSortOrder(params.SortBy)).
		WithOffset(skip).
		WithLimit(limit)

	// total and page must come from the same snapshot, or a job
	// finishing mid-request skews the window arithmetic
	ctx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return api.PaginatedResult[api.JobDigest]{}, err
	}
	defer func() { _, _ = store.Rollback(ctx) }()

	total, err := s.store.Job().Count(ctx, filter)
	if err != nil {
		return api.PaginatedResult[api.JobDigest]{}, err
	}
	jobs, err := s.store.Job().List(ctx, filter, opts)
	if err != nil {
		return api.PaginatedResult[api.JobDigest]{}, err
	}
	if _, err := store.Commit(ctx); err != nil {
		return api.PaginatedResult[api.JobDigest]{}, err
	}

	page := make([]api.JobDigest, 0, len(jobs))
	for i := range jobs {
		page = append(page, jobs[i].ToApiDigest())
	}
	return api.PaginatedResult[api.JobDigest]{
		Page:           page,
		PageSize:       len(page),
		OffsetNextPage: skip + len(page),
		Total:          total,
	}, nil
}

// GetJob returns the full job context: every stage argument, every
// result so far, and the tags.
func (s *JobService) GetJob(ctx context.Context, id api.JobID) (api.JobContext, error) {
	job, err := s.store.Job().Get(ctx, uint64(id))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return api.JobContext{}, NewErrJobNotFound(id.String())
		}
		return api.JobContext{}, err
	}
	return job.ToApiContext(), nil
}

func (s *JobService) GetJobTags(ctx context.Context, id api.JobID) (map[string]string, error) {
	tags, err := s.store.Job().GetTags(ctx, uint64(id))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id.String())
		}
		return nil, err
	}
	return tags, nil
}

// CreateJob accepts a pipeline submission and returns the created job,
// already dispatched.
func (s *JobService) CreateJob(ctx context.Context, req *api.JobRequest) (api.JobContext, error) {
	if err := s.validate.Struct(req); err != nil {
		return api.JobContext{}, NewErrInvalidRequest(err)
	}

	job, err := s.engine.CreateJob(ctx, req)
	if err != nil {
		pipelineErr := &scheduler.InvalidPipelineError{}
		if errors.As(err, &pipelineErr) {
			return api.JobContext{}, NewErrInvalidRequest(err)
		}
		return api.JobContext{}, err
	}
	return job.ToApiContext(), nil
}

// CancelJob aborts the job. A job already in a terminal state is
// returned as is: cancellation is idempotent.
func (s *JobService) CancelJob(ctx context.Context, id api.JobID) (api.JobContext, error) {
	job, err := s.engine.CancelJob(ctx, uint64(id))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return api.JobContext{}, NewErrJobNotFound(id.String())
		}
		return api.JobContext{}, err
	}
	return job.ToApiContext(), nil
}

func (s *JobService) RestartJob(ctx context.Context, id api.JobID, restartFrom int) (api.JobContext, error) {
	job, err := s.engine.RestartJob(ctx, uint64(id), restartFrom)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRecordNotFound):
			return api.JobContext{}, NewErrJobNotFound(id.String())
		case errors.As(err, new(*scheduler.JobActiveError)):
			return api.JobContext{}, NewErrJobStateConflict(err)
		case errors.As(err, new(*scheduler.InvalidRestartError)):
			return api.JobContext{}, NewErrInvalidRequest(err)
		}
		return api.JobContext{}, err
	}
	return job.ToApiContext(), nil
}
