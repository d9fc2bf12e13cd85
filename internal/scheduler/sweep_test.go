package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/config"
	"github.com/conveyor-dev/conveyor/internal/queue"
	"github.com/conveyor-dev/conveyor/internal/store"
)

func TestSweepTimeouts(t *testing.T) {
	cfg := config.NewDefault()
	// a negative timeout puts the cutoff in the future: everything in
	// flight is overdue
	cfg.Service.StageTimeout = -time.Second

	db, err := store.InitDB(cfg)
	require.NoError(t, err)
	s := store.NewStore(db)
	defer s.Close()
	require.NoError(t, s.InitialMigration())
	defer func() {
		db.Exec("DELETE from job_stages;")
		db.Exec("DELETE from jobs;")
	}()

	engine := NewEngine(cfg, s, queue.NewInMemory(), nil)

	job, err := engine.CreateJob(context.TODO(), &api.JobRequest{
		JobWorkers: []api.WorkerArgument{{WorkerType: "build"}},
	})
	require.NoError(t, err)
	require.Equal(t, string(api.JobStatusInProgress), job.Status)

	engine.sweepTimeouts(context.TODO())

	swept, err := s.Job().Get(context.TODO(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(api.JobStatusAborted), swept.Status)

	var result api.JobResult
	require.NoError(t, json.Unmarshal(swept.Stages[0].Result, &result))
	require.NotNil(t, result.WorkerException)
	assert.Equal(t, api.WorkerTimeoutCode, result.WorkerException.Code)
}

func TestSweepLeavesFreshJobsAlone(t *testing.T) {
	cfg := config.NewDefault()

	db, err := store.InitDB(cfg)
	require.NoError(t, err)
	s := store.NewStore(db)
	defer s.Close()
	require.NoError(t, s.InitialMigration())
	defer func() {
		db.Exec("DELETE from job_stages;")
		db.Exec("DELETE from jobs;")
	}()

	engine := NewEngine(cfg, s, queue.NewInMemory(), nil)

	job, err := engine.CreateJob(context.TODO(), &api.JobRequest{
		JobWorkers: []api.WorkerArgument{{WorkerType: "build"}},
	})
	require.NoError(t, err)

	engine.sweepTimeouts(context.TODO())

	fresh, err := s.Job().Get(context.TODO(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(api.JobStatusInProgress), fresh.Status)
}
