package scheduler

import (
	"errors"
	"fmt"
)

// errNoop signals a mutation that turned out to be a duplicate or
// stale. The surrounding transaction is rolled back and the caller
// treats the operation as successfully absorbed.
var errNoop = errors.New("no-op")

// InvalidPipelineError rejects a submission whose pipeline can never
// run: unknown worker type, empty stage list, or a reference that does
// not point strictly backwards.
type InvalidPipelineError struct {
	error
}

func NewInvalidPipelineError(format string, args ...any) *InvalidPipelineError {
	return &InvalidPipelineError{fmt.Errorf(format, args...)}
}

// JobActiveError rejects a restart of a job that has not reached a
// terminal state yet.
type JobActiveError struct {
	error
}

func NewJobActiveError(id uint64, status string) *JobActiveError {
	return &JobActiveError{fmt.Errorf("job %08x is still %s", id, status)}
}

// InvalidRestartError rejects a restart index outside the pipeline.
type InvalidRestartError struct {
	error
}

func NewInvalidRestartError(restartFrom, stages int) *InvalidRestartError {
	return &InvalidRestartError{fmt.Errorf("restartFrom %d is outside the pipeline of %d stages", restartFrom, stages)}
}

// UnresolvedReferenceError is raised when an artifact reference in a
// stage argument cannot be satisfied at dispatch time.
type UnresolvedReferenceError struct {
	error
}

func NewUnresolvedReferenceError(format string, args ...any) *UnresolvedReferenceError {
	return &UnresolvedReferenceError{fmt.Errorf(format, args...)}
}
