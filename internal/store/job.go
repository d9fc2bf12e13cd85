package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/store/model"
)

type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id uint64) (*model.Job, error)
	GetTags(ctx context.Context, id uint64) (map[string]string, error)
	Update(ctx context.Context, id uint64, mutate func(job *model.Job) error) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) ([]model.Job, error)
	Count(ctx context.Context, filter *JobQueryFilter) (int64, error)
	AbortLeftovers(ctx context.Context, now time.Time) error
	InitialMigration() error
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Job{}, &model.JobStage{}, &model.JobTag{})
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	if tx := FromContext(ctx); tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

// Create persists the job together with its stages and tags in one
// transaction and returns the record with its assigned id.
func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	result := s.getDB(ctx).Create(&job)
	if result.Error != nil {
		return nil, fmt.Errorf("creating job: %w", result.Error)
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id uint64) (*model.Job, error) {
	job := model.Job{ID: id}
	result := s.getDB(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("stage_index ASC") }).
		Preload("Tags").
		First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &job, nil
}

func (s *JobStore) GetTags(ctx context.Context, id uint64) (map[string]string, error) {
	var count int64
	if result := s.getDB(ctx).Model(&model.Job{}).Where("id = ?", id).Count(&count); result.Error != nil {
		return nil, result.Error
	}
	if count == 0 {
		return nil, ErrRecordNotFound
	}

	var rows []model.JobTag
	result := s.getDB(ctx).Where("job_id = ?", id).Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	tags := make(map[string]string, len(rows))
	for _, t := range rows {
		tags[t.Key] = t.Value
	}
	return tags, nil
}

// Update loads the job under a row lock, applies the mutation and
// persists the job record plus any stage results. Calls for the same
// job are serialized by the lock; different jobs never block each
// other.
func (s *JobStore) Update(ctx context.Context, id uint64, mutate func(job *model.Job) error) (*model.Job, error) {
	var updated *model.Job
	err := s.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		job := model.Job{ID: id}
		// sqlite serializes writers on its own and rejects FOR UPDATE
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		result := q.
			Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("stage_index ASC") }).
			Preload("Tags").
			First(&job)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return result.Error
		}

		if err := mutate(&job); err != nil {
			return err
		}

		if result := tx.Model(&model.Job{}).Where("id = ?", id).
			Select("status", "current_worker", "current_worker_hostname", "modified_time").
			Updates(map[string]any{
				"status":                  job.Status,
				"current_worker":          job.CurrentWorker,
				"current_worker_hostname": job.CurrentWorkerHostname,
				"modified_time":           job.ModifiedTime,
			}); result.Error != nil {
			return result.Error
		}

		for i := range job.Stages {
			stage := &job.Stages[i]
			if result := tx.Model(&model.JobStage{}).
				Where("job_id = ? AND stage_index = ?", id, stage.StageIndex).
				Update("result", stage.Result); result.Error != nil {
				return result.Error
			}
		}

		updated = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) ([]model.Job, error) {
	var jobs []model.Job

	tx := s.getDB(ctx).Model(&model.Job{})
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Find(&jobs); result.Error != nil {
		return nil, result.Error
	}
	return jobs, nil
}

func (s *JobStore) Count(ctx context.Context, filter *JobQueryFilter) (int64, error) {
	tx := s.getDB(ctx).Model(&model.Job{})
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	var total int64
	if result := tx.Count(&total); result.Error != nil {
		return 0, result.Error
	}
	return total, nil
}

// AbortLeftovers marks every non-terminal job aborted. Called once at
// startup: whatever was in flight when the scheduler went down has no
// owner anymore.
func (s *JobStore) AbortLeftovers(ctx context.Context, now time.Time) error {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("status IN ?", []string{
			string(api.JobStatusPending),
			string(api.JobStatusInProgress),
			string(api.JobStatusWaiting),
		}).
		Updates(map[string]any{
			"status":                  string(api.JobStatusAborted),
			"current_worker_hostname": "",
			"modified_time":           now,
		})
	return result.Error
}
