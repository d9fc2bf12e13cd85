// Package worker is the remote execution side of the pipeline: it
// consumes dispatches for one worker type, runs them through an
// Executor and reports claims, logs and results back to the scheduler.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/queue"
	"github.com/conveyor-dev/conveyor/internal/storage"
)

// Executor runs one stage. Implementations return the stage result on
// a clean conclusion, successful or not, and an error only when the
// stage could not be concluded at all, in which case the runner
// synthesizes the exception.
type Executor interface {
	WorkerType() string
	Execute(ctx context.Context, task *Task) (*api.JobResult, error)
}

// Task is one dispatched stage together with the reporting side
// channels an executor needs: artifact upload and job-scoped logging.
type Task struct {
	JobID          api.JobID
	StageIndex     int
	WorkerType     string
	WorkerArgument api.WorkerArgument

	hostname string
	queue    queue.Queue
	storage  storage.Backend
}

// PutArtifact uploads the content and returns the resource to register
// in the stage result. Keys are namespaced per job and stage so
// retries never collide across attempts of different stages.
func (t *Task) PutArtifact(ctx context.Context, key string, r io.Reader, size int64) (api.JobResource, error) {
	storageKey := fmt.Sprintf("%s/%d/%s", t.JobID.String(), t.StageIndex, key)
	uri, err := t.storage.Put(ctx, storageKey, r, size)
	if err != nil {
		return api.JobResource{}, fmt.Errorf("storing artifact %q: %w", key, err)
	}
	return api.JobResource{Key: key, StorageUri: uri}, nil
}

// Log publishes a job-scoped log entry. Best effort: a lost log line
// never fails the stage.
func (t *Task) Log(ctx context.Context, content any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	body, err := queue.Encode(&api.JobLog{
		TimeStamp:      time.Now().UTC(),
		JobID:          t.JobID,
		WorkerType:     t.WorkerType,
		WorkerHostname: t.hostname,
		Content:        raw,
	})
	if err != nil {
		return err
	}
	return t.queue.Publish(ctx, queue.JobLogQueue, body)
}

// Logf is a convenience wrapper around Log for plain messages.
func (t *Task) Logf(ctx context.Context, format string, args ...any) {
	_ = t.Log(ctx, map[string]string{"message": fmt.Sprintf(format, args...)})
}
