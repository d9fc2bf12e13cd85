package queue

import (
	"encoding/json"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
)

// DispatchMessage is published by the scheduler to a worker-type queue.
// The argument carried here is fully resolved: workers never look up
// prior stages themselves.
type DispatchMessage struct {
	JobID          api.JobID          `json:"jobId"`
	StageIndex     int                `json:"stageIndex"`
	WorkerType     string             `json:"workerType"`
	WorkerArgument api.WorkerArgument `json:"workerArgument"`
}

// ClaimMessage is published by a worker the moment it starts executing
// a dispatch. Claims carry observability metadata only.
type ClaimMessage struct {
	JobID          api.JobID `json:"jobId"`
	StageIndex     int       `json:"stageIndex"`
	WorkerType     string    `json:"workerType"`
	WorkerHostname string    `json:"workerHostname"`
}

// ResultMessage is published by a worker once its stage concluded,
// successfully or not.
type ResultMessage struct {
	JobID          api.JobID     `json:"jobId"`
	StageIndex     int           `json:"stageIndex"`
	WorkerType     string        `json:"workerType"`
	WorkerHostname string        `json:"workerHostname"`
	Result         api.JobResult `json:"result"`
}

// Control commands sent to a worker's control queue.
const (
	ControlAbort = "abort"
)

type ControlMessage struct {
	Command string    `json:"command"`
	JobID   api.JobID `json:"jobId"`
}

func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}
