// Package scheduler owns the job lifecycle: it is the only writer of
// job state. Stages are dispatched to worker queues, results and
// claims flow back over the message channel and are absorbed
// idempotently, so at-least-once delivery never advances a job twice.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/config"
	"github.com/conveyor-dev/conveyor/internal/events"
	"github.com/conveyor-dev/conveyor/internal/queue"
	"github.com/conveyor-dev/conveyor/internal/store"
	"github.com/conveyor-dev/conveyor/internal/store/model"
)

type Engine struct {
	store         store.Store
	queue         queue.Queue
	events        *events.EventProducer
	locks         *keyedMutex
	workerTypes   map[string]struct{}
	stageTimeout  time.Duration
	sweepInterval time.Duration

	// dispatch timestamps by job id, kept only for the stage duration
	// histogram; entries do not survive a restart
	dispatchedAt sync.Map
}

func NewEngine(cfg *config.Config, st store.Store, q queue.Queue, ep *events.EventProducer) *Engine {
	types := make(map[string]struct{}, len(cfg.Service.WorkerTypes))
	for _, t := range cfg.Service.WorkerTypes {
		types[t] = struct{}{}
	}
	return &Engine{
		store:         st,
		queue:         q,
		events:        ep,
		locks:         newKeyedMutex(),
		workerTypes:   types,
		stageTimeout:  cfg.Service.StageTimeout,
		sweepInterval: cfg.Service.SweepInterval,
	}
}

// CreateJob validates the pipeline, persists the job and dispatches
// its first stage. A dispatch failure does not undo the creation: the
// job is visible, aborted, with the failure recorded on stage 0.
func (e *Engine) CreateJob(ctx context.Context, req *api.JobRequest) (*model.Job, error) {
	if err := e.validatePipeline(req); err != nil {
		return nil, err
	}

	job, err := e.store.Job().Create(ctx, *model.NewJobFromApiRequest(req, time.Now().UTC()))
	if err != nil {
		return nil, err
	}

	jobsCreatedTotal.Inc()
	jobsActive.Inc()
	e.emitJobEvent(ctx, job)
	zap.S().Named("scheduler").Infow("job created", "job", fmt.Sprintf("%08x", job.ID), "stages", len(job.Stages))

	if err := e.DispatchCurrentStage(ctx, job.ID); err != nil {
		zap.S().Named("scheduler").Errorw("initial dispatch failed", "job", fmt.Sprintf("%08x", job.ID), "error", err)
	}

	return e.store.Job().Get(ctx, job.ID)
}

func (e *Engine) validatePipeline(req *api.JobRequest) error {
	if len(req.JobWorkers) == 0 {
		return NewInvalidPipelineError("pipeline has no stages")
	}
	for i, arg := range req.JobWorkers {
		if _, ok := e.workerTypes[arg.WorkerType]; !ok {
			return NewInvalidPipelineError("stage %d names unknown worker type %q", i, arg.WorkerType)
		}
		refs, err := collectRefs(arg)
		if err != nil {
			return NewInvalidPipelineError("stage %d argument is not valid json: %v", i, err)
		}
		for _, ref := range refs {
			if ref.Stage < 0 || ref.Stage >= i {
				return NewInvalidPipelineError("stage %d references stage %d, which does not precede it", i, ref.Stage)
			}
		}
	}
	return nil
}

// DispatchCurrentStage resolves the current stage's argument and
// publishes it to the worker-type queue. The job is marked inProgress
// before the publish: a worker can never observe a dispatch for a job
// the store still considers idle.
func (e *Engine) DispatchCurrentStage(ctx context.Context, id uint64) error {
	unlock := e.locks.lock(id)
	defer unlock()

	now := time.Now().UTC()
	var dispatch *queue.DispatchMessage

	job, err := e.store.Job().Update(ctx, id, func(job *model.Job) error {
		if api.JobStatus(job.Status).IsTerminal() {
			return errNoop
		}
		if job.CurrentWorker >= len(job.Stages) {
			return errNoop
		}
		stage := &job.Stages[job.CurrentWorker]
		if stage.HasResult() {
			return errNoop
		}

		var arg api.WorkerArgument
		if err := json.Unmarshal(stage.Argument, &arg); err != nil {
			markAborted(job, &api.JobException{Code: api.InvalidPipelineCode, Trace: err.Error()}, now)
			return nil
		}

		resolved, err := resolveArgument(arg, job.Stages, job.CurrentWorker)
		if err != nil {
			markAborted(job, &api.JobException{Code: api.UnresolvedReferenceCode, Trace: err.Error()}, now)
			return nil
		}

		job.Status = string(api.JobStatusInProgress)
		job.CurrentWorkerHostname = ""
		job.ModifiedTime = now

		dispatch = &queue.DispatchMessage{
			JobID:          api.JobID(job.ID),
			StageIndex:     job.CurrentWorker,
			WorkerType:     stage.WorkerType,
			WorkerArgument: resolved,
		}
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil
	}
	if err != nil {
		return err
	}

	e.emitJobEvent(ctx, job)

	if dispatch == nil {
		// resolution failed, the abort is already persisted
		zap.S().Named("scheduler").Warnw("job aborted before dispatch", "job", fmt.Sprintf("%08x", id), "stage", job.CurrentWorker)
		jobsCompletedTotal.WithLabelValues(job.Status).Inc()
		jobsActive.Dec()
		return nil
	}

	body, err := queue.Encode(dispatch)
	if err == nil {
		err = e.queue.Publish(ctx, queue.DispatchQueue(dispatch.WorkerType), body)
	}
	if err != nil {
		zap.S().Named("scheduler").Errorw("dispatch publish failed", "job", fmt.Sprintf("%08x", id), "stage", dispatch.StageIndex, "error", err)
		return e.abortJob(ctx, id, &api.JobException{Code: api.DispatchFailureCode, Trace: err.Error()})
	}

	stagesDispatchedTotal.WithLabelValues(dispatch.WorkerType).Inc()
	e.dispatchedAt.Store(id, time.Now())
	zap.S().Named("scheduler").Infow("stage dispatched", "job", fmt.Sprintf("%08x", id), "stage", dispatch.StageIndex, "workerType", dispatch.WorkerType)
	return nil
}

// ApplyResult absorbs one stage result. Duplicates, stale indexes and
// results for finalized jobs are dropped without touching the record,
// making redelivery harmless. A successful non-final result advances
// the job and dispatches the next stage.
func (e *Engine) ApplyResult(ctx context.Context, msg *queue.ResultMessage) error {
	advance, err := e.applyResultLocked(ctx, msg)
	if err != nil {
		return err
	}
	if advance {
		return e.DispatchCurrentStage(ctx, uint64(msg.JobID))
	}
	return nil
}

func (e *Engine) applyResultLocked(ctx context.Context, msg *queue.ResultMessage) (bool, error) {
	id := uint64(msg.JobID)
	unlock := e.locks.lock(id)
	defer unlock()

	now := time.Now().UTC()
	advance := false

	job, err := e.store.Job().Update(ctx, id, func(job *model.Job) error {
		if api.JobStatus(job.Status).IsTerminal() {
			return errNoop
		}
		if msg.StageIndex != job.CurrentWorker {
			return errNoop
		}
		stage := &job.Stages[msg.StageIndex]
		if stage.HasResult() {
			return errNoop
		}

		result := msg.Result
		if err := stage.SetResult(&result); err != nil {
			return err
		}
		if msg.WorkerHostname != "" {
			job.CurrentWorkerHostname = msg.WorkerHostname
		}
		job.ModifiedTime = now

		switch {
		case result.Failed():
			job.Status = string(api.JobStatusAborted)
		case msg.StageIndex == len(job.Stages)-1:
			job.Status = string(api.JobStatusFinished)
		default:
			job.Status = string(api.JobStatusWaiting)
			job.CurrentWorker++
			job.CurrentWorkerHostname = ""
			advance = true
		}
		return nil
	})
	if errors.Is(err, errNoop) {
		duplicateResultsTotal.Inc()
		return false, nil
	}
	if errors.Is(err, store.ErrRecordNotFound) {
		zap.S().Named("scheduler").Warnw("result for unknown job dropped", "job", msg.JobID.String())
		return false, nil
	}
	if err != nil {
		return false, err
	}

	outcome := outcomeSucceeded
	if msg.Result.Failed() {
		outcome = outcomeFailed
	}
	stageResultsTotal.WithLabelValues(msg.WorkerType, outcome).Inc()
	if started, ok := e.dispatchedAt.LoadAndDelete(uint64(msg.JobID)); ok {
		stageDurationSeconds.WithLabelValues(msg.WorkerType).Observe(time.Since(started.(time.Time)).Seconds())
	}
	if api.JobStatus(job.Status).IsTerminal() {
		jobsCompletedTotal.WithLabelValues(job.Status).Inc()
		jobsActive.Dec()
	}

	e.emitJobEvent(ctx, job)
	zap.S().Named("scheduler").Infow("result applied",
		"job", msg.JobID.String(), "stage", msg.StageIndex, "outcome", outcome, "status", job.Status)
	return advance, nil
}

// ClaimStage records which host picked up the current stage. Claims
// carry observability metadata only: a stale or duplicate claim is
// dropped and never moves the lifecycle.
func (e *Engine) ClaimStage(ctx context.Context, msg *queue.ClaimMessage) error {
	id := uint64(msg.JobID)
	unlock := e.locks.lock(id)
	defer unlock()

	now := time.Now().UTC()
	job, err := e.store.Job().Update(ctx, id, func(job *model.Job) error {
		if job.Status != string(api.JobStatusInProgress) {
			return errNoop
		}
		if msg.StageIndex != job.CurrentWorker {
			return errNoop
		}
		if job.Stages[msg.StageIndex].HasResult() {
			return errNoop
		}
		job.CurrentWorkerHostname = msg.WorkerHostname
		job.ModifiedTime = now
		return nil
	})
	if errors.Is(err, errNoop) || errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	e.emitJobEvent(ctx, job)
	return nil
}

// CancelJob aborts a non-terminal job, recording the cancellation on
// the in-flight stage, and notifies the executing host on a best
// effort basis. Cancelling an already-terminal job returns the job
// unchanged, so redelivered or racing cancellations stay harmless.
func (e *Engine) CancelJob(ctx context.Context, id uint64) (*model.Job, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	now := time.Now().UTC()
	hostname := ""

	job, err := e.store.Job().Update(ctx, id, func(job *model.Job) error {
		if api.JobStatus(job.Status).IsTerminal() {
			return errNoop
		}
		hostname = job.CurrentWorkerHostname
		markAborted(job, &api.JobException{Code: api.JobCancelledCode, Trace: "cancelled by operator"}, now)
		return nil
	})
	if errors.Is(err, errNoop) {
		return e.store.Job().Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	jobsCompletedTotal.WithLabelValues(job.Status).Inc()
	jobsActive.Dec()
	e.dispatchedAt.Delete(id)
	e.emitJobEvent(ctx, job)
	zap.S().Named("scheduler").Infow("job cancelled", "job", fmt.Sprintf("%08x", id))

	if hostname != "" {
		body, err := queue.Encode(&queue.ControlMessage{Command: queue.ControlAbort, JobID: api.JobID(id)})
		if err == nil {
			err = e.queue.Publish(ctx, queue.ControlQueue(hostname), body)
		}
		if err != nil {
			zap.S().Named("scheduler").Warnw("cancel notification failed", "job", fmt.Sprintf("%08x", id), "hostname", hostname, "error", err)
		}
	}

	return job, nil
}

// RestartFromLast selects the job's last stage as the restart point.
const RestartFromLast = -1

// RestartJob re-runs a terminal job from the given stage: results from
// that stage on are discarded and the job goes back to pending before
// the stage is dispatched again.
func (e *Engine) RestartJob(ctx context.Context, id uint64, restartFrom int) (*model.Job, error) {
	unlock := e.locks.lock(id)

	now := time.Now().UTC()
	job, err := e.store.Job().Update(ctx, id, func(job *model.Job) error {
		if !api.JobStatus(job.Status).IsTerminal() {
			return NewJobActiveError(id, job.Status)
		}
		from := restartFrom
		if from == RestartFromLast {
			from = len(job.Stages) - 1
		}
		if from < 0 || from >= len(job.Stages) {
			return NewInvalidRestartError(from, len(job.Stages))
		}
		for i := from; i < len(job.Stages); i++ {
			job.Stages[i].Result = nil
		}
		job.Status = string(api.JobStatusPending)
		job.CurrentWorker = from
		job.CurrentWorkerHostname = ""
		job.ModifiedTime = now
		return nil
	})
	if err != nil {
		unlock()
		return nil, err
	}

	jobsActive.Inc()
	e.emitJobEvent(ctx, job)
	zap.S().Named("scheduler").Infow("job restarted", "job", fmt.Sprintf("%08x", id), "restartFrom", restartFrom)
	unlock()

	if err := e.DispatchCurrentStage(ctx, id); err != nil {
		return nil, err
	}
	return e.store.Job().Get(ctx, id)
}

// AbortLeftovers finalizes every job that was in flight when the
// scheduler last went down. Called once before consuming queues.
func (e *Engine) AbortLeftovers(ctx context.Context) error {
	return e.store.Job().AbortLeftovers(ctx, time.Now().UTC())
}

func (e *Engine) abortJob(ctx context.Context, id uint64, exc *api.JobException) error {
	now := time.Now().UTC()
	job, err := e.store.Job().Update(ctx, id, func(job *model.Job) error {
		if api.JobStatus(job.Status).IsTerminal() {
			return errNoop
		}
		markAborted(job, exc, now)
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil
	}
	if err != nil {
		return err
	}
	jobsCompletedTotal.WithLabelValues(job.Status).Inc()
	jobsActive.Dec()
	e.dispatchedAt.Delete(id)
	e.emitJobEvent(ctx, job)
	return nil
}

// markAborted finalizes the job, recording the exception as the result
// of the in-flight stage when that stage has none yet.
func markAborted(job *model.Job, exc *api.JobException, now time.Time) {
	if job.CurrentWorker < len(job.Stages) {
		stage := &job.Stages[job.CurrentWorker]
		if !stage.HasResult() {
			_ = stage.SetResult(&api.JobResult{
				WorkerType:   stage.WorkerType,
				JobException: exc,
			})
		}
	}
	job.Status = string(api.JobStatusAborted)
	job.ModifiedTime = now
}

func (e *Engine) emitJobEvent(ctx context.Context, job *model.Job) {
	if e.events == nil || job == nil {
		return
	}
	data, err := json.Marshal(events.JobEvent{
		JobID:         fmt.Sprintf("%08x", job.ID),
		Status:        job.Status,
		CurrentWorker: job.CurrentWorker,
	})
	if err != nil {
		return
	}
	if err := e.events.Write(ctx, events.JobMessageKind, bytes.NewReader(data)); err != nil {
		zap.S().Named("scheduler").Warnw("failed to emit job event", "error", err)
	}
}

// Run consumes the scheduler-side queues and runs the timeout sweeper
// until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.consume(ctx, queue.ResultsQueue, e.handleResult) })
	g.Go(func() error { return e.consume(ctx, queue.ClaimsQueue, e.handleClaim) })
	g.Go(func() error { return e.consume(ctx, queue.JobLogQueue, e.handleJobLog) })
	g.Go(func() error { return e.consume(ctx, queue.SystemLogQueue, e.handleSystemLog) })
	g.Go(func() error { return e.sweep(ctx) })

	return g.Wait()
}

func (e *Engine) consume(ctx context.Context, queueName string, handle func(context.Context, []byte) error) error {
	deliveries, err := e.queue.Consume(ctx, queueName)
	if err != nil {
		return fmt.Errorf("consuming %s: %w", queueName, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if err := handle(ctx, d.Body()); err != nil {
				zap.S().Named("scheduler").Errorw("handler failed, requeueing", "queue", queueName, "error", err)
				if err := d.Requeue(); err != nil {
					zap.S().Named("scheduler").Errorw("requeue failed", "queue", queueName, "error", err)
				}
				continue
			}
			if err := d.Ack(); err != nil {
				zap.S().Named("scheduler").Errorw("ack failed", "queue", queueName, "error", err)
			}
		}
	}
}

// Malformed payloads are logged and dropped: requeueing a message that
// can never decode would redeliver it forever.
func (e *Engine) handleResult(ctx context.Context, body []byte) error {
	var msg queue.ResultMessage
	if err := queue.Decode(body, &msg); err != nil {
		zap.S().Named("scheduler").Errorw("dropping undecodable result", "error", err)
		return nil
	}
	return e.ApplyResult(ctx, &msg)
}

func (e *Engine) handleClaim(ctx context.Context, body []byte) error {
	var msg queue.ClaimMessage
	if err := queue.Decode(body, &msg); err != nil {
		zap.S().Named("scheduler").Errorw("dropping undecodable claim", "error", err)
		return nil
	}
	return e.ClaimStage(ctx, &msg)
}

func (e *Engine) handleJobLog(ctx context.Context, body []byte) error {
	var entry api.JobLog
	if err := queue.Decode(body, &entry); err != nil {
		zap.S().Named("scheduler").Errorw("dropping undecodable job log", "error", err)
		return nil
	}
	if entry.TimeStamp.IsZero() {
		entry.TimeStamp = time.Now().UTC()
	}
	return e.store.Log().InsertJobLog(ctx, model.NewJobLogFromApi(&entry))
}

func (e *Engine) handleSystemLog(ctx context.Context, body []byte) error {
	var entry api.SystemLog
	if err := queue.Decode(body, &entry); err != nil {
		zap.S().Named("scheduler").Errorw("dropping undecodable system log", "error", err)
		return nil
	}
	if entry.TimeStamp.IsZero() {
		entry.TimeStamp = time.Now().UTC()
	}
	return e.store.Log().InsertSystemLog(ctx, model.NewSystemLogFromApi(&entry))
}

func (e *Engine) sweep(ctx context.Context) error {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.sweepTimeouts(ctx)
		}
	}
}

// sweepTimeouts fails every stage that has been in flight longer than
// the stage timeout, synthesizing the result the worker never sent.
// ApplyResult's staleness checks make the sweep race-free against a
// real result arriving concurrently.
func (e *Engine) sweepTimeouts(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-e.stageTimeout)
	filter := store.NewJobQueryFilter().
		ByStatus(string(api.JobStatusInProgress)).
		ByModifiedBefore(cutoff)

	jobs, err := e.store.Job().List(ctx, filter, nil)
	if err != nil {
		zap.S().Named("scheduler").Errorw("timeout sweep listing failed", "error", err)
		return
	}

	for i := range jobs {
		job := &jobs[i]
		full, err := e.store.Job().Get(ctx, job.ID)
		if err != nil {
			continue
		}
		if full.CurrentWorker >= len(full.Stages) {
			continue
		}
		stage := full.Stages[full.CurrentWorker]
		msg := &queue.ResultMessage{
			JobID:          api.JobID(full.ID),
			StageIndex:     full.CurrentWorker,
			WorkerType:     stage.WorkerType,
			WorkerHostname: full.CurrentWorkerHostname,
			Result: api.JobResult{
				WorkerType: stage.WorkerType,
				WorkerException: &api.WorkerException{
					Code:  api.WorkerTimeoutCode,
					Kind:  "StageTimeout",
					Trace: fmt.Sprintf("stage %d exceeded the %s stage timeout", full.CurrentWorker, e.stageTimeout),
				},
			},
		}
		if err := e.ApplyResult(ctx, msg); err != nil {
			zap.S().Named("scheduler").Errorw("timeout apply failed", "job", fmt.Sprintf("%08x", full.ID), "error", err)
			continue
		}
		stageTimeoutsTotal.Inc()
		zap.S().Named("scheduler").Warnw("stage timed out", "job", fmt.Sprintf("%08x", full.ID), "stage", full.CurrentWorker)
	}
}
