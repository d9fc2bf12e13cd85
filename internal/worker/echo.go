package worker

import (
	"context"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
)

// EchoExecutor succeeds every stage and copies the decoded argument
// into the result output. Used for end-to-end wiring checks of a
// deployment before real executors are attached.
type EchoExecutor struct {
	workerType string
}

var _ Executor = (*EchoExecutor)(nil)

func NewEchoExecutor(workerType string) *EchoExecutor {
	return &EchoExecutor{workerType: workerType}
}

func (e *EchoExecutor) WorkerType() string {
	return e.workerType
}

func (e *EchoExecutor) Execute(ctx context.Context, task *Task) (*api.JobResult, error) {
	task.Logf(ctx, "echo stage %d started", task.StageIndex)

	spec, err := task.WorkerArgument.DecodeSpec()
	if err != nil {
		return nil, err
	}

	output := map[string]any{"echoed": true}
	if spec != nil {
		output["spec"] = spec
	}

	task.Logf(ctx, "echo stage %d finished", task.StageIndex)
	return &api.JobResult{Output: output}, nil
}
