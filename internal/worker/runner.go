package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/queue"
	"github.com/conveyor-dev/conveyor/internal/storage"
)

const defaultHeartbeatInterval = time.Minute

// Runner consumes dispatches for one worker type and drives them
// through the configured executor. One stage runs at a time; the
// scheduler load-balances across hosts through the shared queue.
type Runner struct {
	hostname          string
	queue             queue.Queue
	storage           storage.Backend
	executor          Executor
	heartbeatInterval time.Duration

	mu      sync.Mutex
	running map[api.JobID]context.CancelFunc
}

func NewRunner(hostname string, q queue.Queue, st storage.Backend, executor Executor) *Runner {
	return &Runner{
		hostname:          hostname,
		queue:             q,
		storage:           st,
		executor:          executor,
		heartbeatInterval: defaultHeartbeatInterval,
		running:           make(map[api.JobID]context.CancelFunc),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.consumeDispatches(ctx) })
	g.Go(func() error { return r.consumeControl(ctx) })
	g.Go(func() error { return r.heartbeat(ctx) })
	return g.Wait()
}

func (r *Runner) consumeDispatches(ctx context.Context) error {
	queueName := queue.DispatchQueue(r.executor.WorkerType())
	deliveries, err := r.queue.Consume(ctx, queueName)
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
			var msg queue.DispatchMessage
			if err := queue.Decode(d.Body(), &msg); err != nil {
				zap.S().Named("worker").Errorw("dropping undecodable dispatch", "error", err)
				_ = d.Ack()
				continue
			}
			if err := r.process(ctx, &msg); err != nil {
				zap.S().Named("worker").Errorw("stage not concluded, requeueing", "job", msg.JobID.String(), "stage", msg.StageIndex, "error", err)
				_ = d.Requeue()
				continue
			}
			_ = d.Ack()
		}
	}
}

// process claims the stage, executes it and publishes the result. A
// non-nil return means no result reached the scheduler and the
// dispatch must be redelivered.
func (r *Runner) process(ctx context.Context, msg *queue.DispatchMessage) error {
	r.publishClaim(ctx, msg)

	jobCtx, cancel := context.WithCancel(ctx)
	r.track(msg.JobID, cancel)
	defer r.untrack(msg.JobID)

	task := &Task{
		JobID:          msg.JobID,
		StageIndex:     msg.StageIndex,
		WorkerType:     msg.WorkerType,
		WorkerArgument: msg.WorkerArgument,
		hostname:       r.hostname,
		queue:          r.queue,
		storage:        r.storage,
	}

	result := r.execute(jobCtx, task)
	result.WorkerType = msg.WorkerType

	body, err := queue.Encode(&queue.ResultMessage{
		JobID:          msg.JobID,
		StageIndex:     msg.StageIndex,
		WorkerType:     msg.WorkerType,
		WorkerHostname: r.hostname,
		Result:         *result,
	})
	if err != nil {
		return err
	}
	// the parent context, not jobCtx: an aborted stage still reports
	return r.queue.Publish(ctx, queue.ResultsQueue, body)
}

func (r *Runner) execute(ctx context.Context, task *Task) (result *api.JobResult) {
	defer func() {
		if p := recover(); p != nil {
			result = &api.JobResult{
				WorkerException: &api.WorkerException{
					Code:  api.WorkerGeneralCode,
					Kind:  "Panic",
					Trace: fmt.Sprintf("%v\n%s", p, debug.Stack()),
				},
			}
		}
	}()

	res, err := r.executor.Execute(ctx, task)
	switch {
	case err == nil && res != nil:
		return res
	case ctx.Err() != nil:
		return &api.JobResult{
			WorkerException: &api.WorkerException{
				Code:  api.WorkerAbortedCode,
				Kind:  "Aborted",
				Trace: "stage cancelled while executing",
			},
		}
	case err != nil:
		return &api.JobResult{
			WorkerException: &api.WorkerException{
				Code:  api.WorkerGeneralCode,
				Kind:  "ExecutorError",
				Trace: err.Error(),
			},
		}
	default:
		return &api.JobResult{
			WorkerException: &api.WorkerException{
				Code:  api.WorkerGeneralCode,
				Kind:  "EmptyResult",
				Trace: "executor returned neither result nor error",
			},
		}
	}
}

func (r *Runner) publishClaim(ctx context.Context, msg *queue.DispatchMessage) {
	body, err := queue.Encode(&queue.ClaimMessage{
		JobID:          msg.JobID,
		StageIndex:     msg.StageIndex,
		WorkerType:     msg.WorkerType,
		WorkerHostname: r.hostname,
	})
	if err == nil {
		err = r.queue.Publish(ctx, queue.ClaimsQueue, body)
	}
	if err != nil {
		zap.S().Named("worker").Warnw("claim publish failed", "job", msg.JobID.String(), "error", err)
	}
}

func (r *Runner) consumeControl(ctx context.Context) error {
	queueName := queue.ControlQueue(r.hostname)
	deliveries, err := r.queue.Consume(ctx, queueName)
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
			var msg queue.ControlMessage
			if err := queue.Decode(d.Body(), &msg); err != nil {
				zap.S().Named("worker").Errorw("dropping undecodable control message", "error", err)
				_ = d.Ack()
				continue
			}
			if msg.Command == queue.ControlAbort {
				r.abort(msg.JobID)
			}
			_ = d.Ack()
		}
	}
}

func (r *Runner) track(id api.JobID, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[id] = cancel
}

func (r *Runner) untrack(id api.JobID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, id)
}

// abort cancels the stage if this host is still executing it. Stale
// notifications for stages that already concluded are ignored.
func (r *Runner) abort(id api.JobID) {
	r.mu.Lock()
	cancel, ok := r.running[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	zap.S().Named("worker").Infow("aborting stage on scheduler request", "job", id.String())
	cancel()
}

type heartbeatPayload struct {
	Status  string `json:"status"`
	Running int    `json:"running"`
}

func (r *Runner) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.mu.Lock()
			running := len(r.running)
			r.mu.Unlock()

			raw, _ := json.Marshal(heartbeatPayload{Status: "alive", Running: running})
			body, err := queue.Encode(&api.SystemLog{
				TimeStamp:      time.Now().UTC(),
				WorkerType:     r.executor.WorkerType(),
				WorkerHostname: r.hostname,
				Content:        raw,
			})
			if err == nil {
				err = r.queue.Publish(ctx, queue.SystemLogQueue, body)
			}
			if err != nil {
				zap.S().Named("worker").Warnw("heartbeat publish failed", "error", err)
			}
		}
	}
}
