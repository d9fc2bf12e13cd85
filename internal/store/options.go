package store

import (
	"time"

	"gorm.io/gorm"
)

type SortOrder int

const (
	SortByModifiedTime SortOrder = iota
	SortByCreatedTime
)

// ParseSortOrder maps the query-string value onto a sort order,
// defaulting to modified time for anything unrecognized.
func ParseSortOrder(s string) SortOrder {
	if s == "createdTime" {
		return SortByCreatedTime
	}
	return SortByModifiedTime
}

type JobQueryOptions struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

func NewJobQueryOptions() *JobQueryOptions {
	return &JobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

// WithSortOrder orders descending by the chosen timestamp, most recent
// first, matching the monitoring use of the job list.
func (o *JobQueryOptions) WithSortOrder(sort SortOrder) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByCreatedTime:
			return tx.Order("created_time DESC")
		default:
			return tx.Order("modified_time DESC")
		}
	})
	return o
}

func (o *JobQueryOptions) WithOffset(offset int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Offset(offset)
	})
	return o
}

func (o *JobQueryOptions) WithLimit(limit int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}

type JobQueryFilter struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

// ByStatus narrows a listing to jobs in any of the given states.
func (f *JobQueryFilter) ByStatus(statuses ...string) *JobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return f
}

// ByModifiedBefore selects jobs whose last transition is older than the
// given instant. Used by the timeout sweeper.
func (f *JobQueryFilter) ByModifiedBefore(t time.Time) *JobQueryFilter {
	f.QueryFn = append(f.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("modified_time < ?", t)
	})
	return f
}
