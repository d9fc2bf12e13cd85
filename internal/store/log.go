package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/conveyor-dev/conveyor/internal/store/model"
)

type Log interface {
	InsertSystemLog(ctx context.Context, log *model.SystemLog) error
	InsertJobLog(ctx context.Context, log *model.JobLog) error
	ListSystemLogs(ctx context.Context, skip, limit int) ([]model.SystemLog, int64, error)
	ListJobLogs(ctx context.Context, jobID *uint64, skip, limit int) ([]model.JobLog, int64, error)
	InitialMigration() error
}

type LogStore struct {
	db *gorm.DB
}

// Make sure we conform to Log interface
var _ Log = (*LogStore)(nil)

func NewLogStore(db *gorm.DB) Log {
	return &LogStore{db: db}
}

func (s *LogStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.SystemLog{}, &model.JobLog{})
}

func (s *LogStore) getDB(ctx context.Context) *gorm.DB {
	if tx := FromContext(ctx); tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

func (s *LogStore) InsertSystemLog(ctx context.Context, log *model.SystemLog) error {
	return s.getDB(ctx).Create(log).Error
}

func (s *LogStore) InsertJobLog(ctx context.Context, log *model.JobLog) error {
	return s.getDB(ctx).Create(log).Error
}

// ListSystemLogs returns system log entries in insertion order,
// oldest first, with the unpaginated total.
func (s *LogStore) ListSystemLogs(ctx context.Context, skip, limit int) ([]model.SystemLog, int64, error) {
	var total int64
	if result := s.getDB(ctx).Model(&model.SystemLog{}).Count(&total); result.Error != nil {
		return nil, 0, result.Error
	}

	var logs []model.SystemLog
	result := s.getDB(ctx).Model(&model.SystemLog{}).
		Order("time_stamp ASC, id ASC").
		Offset(skip).Limit(limit).
		Find(&logs)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return logs, total, nil
}

// ListJobLogs lists log entries for one job, or across all jobs when
// jobID is nil. Insertion order, oldest first.
func (s *LogStore) ListJobLogs(ctx context.Context, jobID *uint64, skip, limit int) ([]model.JobLog, int64, error) {
	countQuery := s.getDB(ctx).Model(&model.JobLog{})
	listQuery := s.getDB(ctx).Model(&model.JobLog{})
	if jobID != nil {
		countQuery = countQuery.Where("job_id = ?", *jobID)
		listQuery = listQuery.Where("job_id = ?", *jobID)
	}

	var total int64
	if result := countQuery.Count(&total); result.Error != nil {
		return nil, 0, result.Error
	}

	var logs []model.JobLog
	result := listQuery.
		Order("time_stamp ASC, id ASC").
		Offset(skip).Limit(limit).
		Find(&logs)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return logs, total, nil
}
