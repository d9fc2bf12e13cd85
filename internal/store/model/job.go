package model

import (
	"encoding/json"
	"time"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
)

type Job struct {
	ID                    uint64 `gorm:"primaryKey;autoIncrement"`
	CreatedTime           time.Time
	ModifiedTime          time.Time `gorm:"index"`
	Status                string
	CurrentWorker         int
	CurrentWorkerHostname string
	Stages                []JobStage `gorm:"foreignKey:JobID;references:ID;constraint:OnDelete:CASCADE;"`
	Tags                  []JobTag   `gorm:"foreignKey:JobID;references:ID;constraint:OnDelete:CASCADE;"`
}

type JobStage struct {
	JobID      uint64 `gorm:"primaryKey;autoIncrement:false"`
	StageIndex int    `gorm:"primaryKey;autoIncrement:false"`
	WorkerType string
	Argument   []byte `gorm:"type:jsonb"`
	Result     []byte `gorm:"type:jsonb"`
}

type JobTag struct {
	JobID uint64 `gorm:"primaryKey;autoIncrement:false"`
	Key   string `gorm:"primaryKey;column:key;type:VARCHAR;size:100;"`
	Value string `gorm:"column:value;type:VARCHAR;size:100;not null"`
}

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

// NewJobFromApiRequest builds the persistent record for a submitted
// pipeline: status pending, stage 0 current, no results yet.
func NewJobFromApiRequest(req *api.JobRequest, now time.Time) *Job {
	job := &Job{
		CreatedTime:   now,
		ModifiedTime:  now,
		Status:        string(api.JobStatusPending),
		CurrentWorker: 0,
	}
	for i, arg := range req.JobWorkers {
		raw, _ := json.Marshal(arg)
		job.Stages = append(job.Stages, JobStage{
			StageIndex: i,
			WorkerType: arg.WorkerType,
			Argument:   raw,
		})
	}
	for k, v := range req.Tags {
		job.Tags = append(job.Tags, JobTag{Key: k, Value: v})
	}
	return job
}

func (j *Job) ToApiDigest() api.JobDigest {
	return api.JobDigest{
		JobID:                 api.JobID(j.ID),
		CreatedTime:           j.CreatedTime,
		ModifiedTime:          j.ModifiedTime,
		Status:                api.JobStatus(j.Status),
		CurrentWorker:         j.CurrentWorker,
		CurrentWorkerHostname: j.CurrentWorkerHostname,
	}
}

func (j *Job) ToApiContext() api.JobContext {
	ctx := api.JobContext{
		JobID:                 api.JobID(j.ID),
		CreatedTime:           j.CreatedTime,
		ModifiedTime:          j.ModifiedTime,
		Status:                api.JobStatus(j.Status),
		CurrentWorker:         j.CurrentWorker,
		CurrentWorkerHostname: j.CurrentWorkerHostname,
		JobWorkers:            make([]api.JobWorker, 0, len(j.Stages)),
		Tags:                  make(map[string]string, len(j.Tags)),
	}
	for _, s := range j.Stages {
		ctx.JobWorkers = append(ctx.JobWorkers, s.ToApiWorker())
	}
	for _, t := range j.Tags {
		ctx.Tags[t.Key] = t.Value
	}
	return ctx
}

func (s *JobStage) ToApiWorker() api.JobWorker {
	w := api.JobWorker{WorkerType: s.WorkerType}
	if len(s.Argument) > 0 {
		_ = json.Unmarshal(s.Argument, &w.WorkerArgument)
	}
	if len(s.Result) > 0 {
		w.WorkerResult = &api.JobResult{}
		_ = json.Unmarshal(s.Result, w.WorkerResult)
	}
	return w
}

// SetResult records the stage outcome. It is the caller's job to make
// sure a result is only ever set once.
func (s *JobStage) SetResult(result *api.JobResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	s.Result = raw
	return nil
}

// HasResult reports whether the stage already completed.
func (s *JobStage) HasResult() bool {
	return len(s.Result) > 0
}
