package service

import "fmt"

// ErrResourceNotFound is returned when the requested job does not
// exist.
type ErrResourceNotFound struct {
	error
}

func NewErrJobNotFound(id string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("job %s not found", id)}
}

// ErrInvalidRequest rejects a request the caller can fix: malformed
// body, unknown worker type, forward reference, out-of-range restart
// index.
type ErrInvalidRequest struct {
	error
}

func NewErrInvalidRequest(err error) *ErrInvalidRequest {
	return &ErrInvalidRequest{err}
}

// ErrJobStateConflict rejects a transition the job's current state
// does not admit, like cancelling a finished job.
type ErrJobStateConflict struct {
	error
}

func NewErrJobStateConflict(err error) *ErrJobStateConflict {
	return &ErrJobStateConflict{err}
}
