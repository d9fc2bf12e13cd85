package model

import (
	"time"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
)

type SystemLog struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	TimeStamp      time.Time `gorm:"index"`
	WorkerType     string
	WorkerHostname string
	Content        []byte `gorm:"type:jsonb"`
}

type JobLog struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	TimeStamp      time.Time `gorm:"index"`
	JobID          uint64    `gorm:"index"`
	WorkerType     string
	WorkerHostname string
	Content        []byte `gorm:"type:jsonb"`
}

func NewSystemLogFromApi(l *api.SystemLog) *SystemLog {
	return &SystemLog{
		TimeStamp:      l.TimeStamp,
		WorkerType:     l.WorkerType,
		WorkerHostname: l.WorkerHostname,
		Content:        l.Content,
	}
}

func NewJobLogFromApi(l *api.JobLog) *JobLog {
	return &JobLog{
		TimeStamp:      l.TimeStamp,
		JobID:          uint64(l.JobID),
		WorkerType:     l.WorkerType,
		WorkerHostname: l.WorkerHostname,
		Content:        l.Content,
	}
}

func (l *SystemLog) ToApiResource() api.SystemLog {
	return api.SystemLog{
		TimeStamp:      l.TimeStamp,
		WorkerType:     l.WorkerType,
		WorkerHostname: l.WorkerHostname,
		Content:        l.Content,
	}
}

func (l *JobLog) ToApiResource() api.JobLog {
	return api.JobLog{
		TimeStamp:      l.TimeStamp,
		JobID:          api.JobID(l.JobID),
		WorkerType:     l.WorkerType,
		WorkerHostname: l.WorkerHostname,
		Content:        l.Content,
	}
}
