package v1alpha1

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "inProgress"
	JobStatusWaiting    JobStatus = "waiting"
	JobStatusAborted    JobStatus = "aborted"
	JobStatusFinished   JobStatus = "finished"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusAborted || s == JobStatusFinished
}

// Exception codes raised by the scheduler itself.
const (
	InvalidPipelineCode     = "scheduler.InvalidPipeline"
	UnresolvedReferenceCode = "scheduler.UnresolvedReference"
	JobCancelledCode        = "scheduler.Cancelled"
	DispatchFailureCode     = "scheduler.DispatchFailure"
)

// Exception codes reported by (or on behalf of) workers.
const (
	WorkerTimeoutCode = "worker.Timeout"
	WorkerGeneralCode = "worker.GeneralException"
	WorkerAbortedCode = "worker.Aborted"
)

// JobException is an orchestration-level failure attributable to the
// scheduler: malformed pipeline, unresolved artifact reference,
// explicit cancellation.
type JobException struct {
	Code    string          `json:"code"`
	Trace   string          `json:"trace"`
	Content json.RawMessage `json:"content,omitempty"`
}

// WorkerException is a stage-level failure reported by the worker that
// executed the stage. Kind carries the worker's own exception type and
// is opaque to the scheduler, except for the synthesized timeout.
type WorkerException struct {
	Code  string `json:"code"`
	Kind  string `json:"kind"`
	Trace string `json:"trace"`
}

// JobResource is a named artifact produced by a stage: a logical key
// plus the backend-resolved storage location.
type JobResource struct {
	Key        string `json:"key"`
	StorageUri string `json:"storageUri"`
}

// JobResult is the outcome of one stage. Both exception fields absent
// signals success. Resources holds the artifacts registered by the
// stage, keyed by logical name; Output carries worker-type specific
// metrics and findings.
type JobResult struct {
	WorkerType      string                 `json:"workerType"`
	JobException    *JobException          `json:"jobException,omitempty"`
	WorkerException *WorkerException       `json:"workerException,omitempty"`
	Resources       map[string]JobResource `json:"resources,omitempty"`
	Output          map[string]any         `json:"output,omitempty"`
}

// Failed reports whether the result carries any exception.
func (r *JobResult) Failed() bool {
	return r.JobException != nil || r.WorkerException != nil
}

// JobWorker is one pipeline stage: the argument it was created with and,
// once the stage completed, its result.
type JobWorker struct {
	WorkerType     string         `json:"workerType"`
	WorkerArgument WorkerArgument `json:"workerArgument"`
	WorkerResult   *JobResult     `json:"workerResult,omitempty"`
}

// JobDigest is the summary projection used in list views.
type JobDigest struct {
	JobID                 JobID     `json:"jobId"`
	CreatedTime           time.Time `json:"createdTime"`
	ModifiedTime          time.Time `json:"modifiedTime"`
	Status                JobStatus `json:"status"`
	CurrentWorker         int       `json:"currentWorker"`
	CurrentWorkerHostname string    `json:"currentWorkerHostname"`
}

// JobContext is the full job record.
type JobContext struct {
	JobID                 JobID             `json:"jobId"`
	CreatedTime           time.Time         `json:"createdTime"`
	ModifiedTime          time.Time         `json:"modifiedTime"`
	Status                JobStatus         `json:"status"`
	CurrentWorker         int               `json:"currentWorker"`
	CurrentWorkerHostname string            `json:"currentWorkerHostname"`
	JobWorkers            []JobWorker       `json:"jobWorkers"`
	Tags                  map[string]string `json:"tags"`
}

// JobRequest is the job submission body: an ordered, non-empty pipeline
// of stage arguments plus free-form tags.
type JobRequest struct {
	JobWorkers []WorkerArgument  `json:"jobWorkers" validate:"required,min=1,dive"`
	Tags       map[string]string `json:"tags"`
}

// PaginatedResult is the uniform window projection for all listings.
type PaginatedResult[T any] struct {
	Page           []T   `json:"page"`
	PageSize       int   `json:"pageSize"`
	OffsetNextPage int   `json:"offsetNextPage"`
	Total          int64 `json:"total"`
}

type SystemLog struct {
	TimeStamp      time.Time       `json:"timeStamp"`
	WorkerType     string          `json:"workerType"`
	WorkerHostname string          `json:"workerHostname"`
	Content        json.RawMessage `json:"content"`
}

type JobLog struct {
	TimeStamp      time.Time       `json:"timeStamp"`
	JobID          JobID           `json:"jobId"`
	WorkerType     string          `json:"workerType"`
	WorkerHostname string          `json:"workerHostname"`
	Content        json.RawMessage `json:"content"`
}
