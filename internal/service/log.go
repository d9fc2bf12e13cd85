package service

import (
	"context"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/store"
)

type LogService struct {
	store       store.Store
	maxPageSize int
}

func NewLogService(st store.Store, maxPageSize int) *LogService {
	if maxPageSize <= 0 {
		maxPageSize = defaultPageSize
	}
	return &LogService{store: st, maxPageSize: maxPageSize}
}

func (s *LogService) clampWindow(skip, limit int) (int, int) {
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

// ListSystemLogs returns one window of worker heartbeat entries,
// oldest first.
func (s *LogService) ListSystemLogs(ctx context.Context, skip, limit int) (api.PaginatedResult[api.SystemLog], error) {
	skip, limit = s.clampWindow(skip, limit)

	logs, total, err := s.store.Log().ListSystemLogs(ctx, skip, limit)
	if err != nil {
		return api.PaginatedResult[api.SystemLog]{}, err
	}
	page := make([]api.SystemLog, 0, len(logs))
	for i := range logs {
		page = append(page, logs[i].ToApiResource())
	}
	return api.PaginatedResult[api.SystemLog]{
		Page:           page,
		PageSize:       len(page),
		OffsetNextPage: skip + len(page),
		Total:          total,
	}, nil
}

// ListJobLogs returns one window of per-job execution log entries,
// oldest first. A nil jobID lists across all jobs.
func (s *LogService) ListJobLogs(ctx context.Context, jobID *api.JobID, skip, limit int) (api.PaginatedResult[api.JobLog], error) {
	skip, limit = s.clampWindow(skip, limit)

	var id *uint64
	if jobID != nil {
		v := uint64(*jobID)
		id = &v
	}
	logs, total, err := s.store.Log().ListJobLogs(ctx, id, skip, limit)
	if err != nil {
		return api.PaginatedResult[api.JobLog]{}, err
	}
	page := make([]api.JobLog, 0, len(logs))
	for i := range logs {
		page = append(page, logs[i].ToApiResource())
	}
	return api.PaginatedResult[api.JobLog]{
		Page:           page,
		PageSize:       len(page),
		OffsetNextPage: skip + len(page),
		Total:          total,
	}, nil
}
