package events

// JobEvent describes one job status transition, emitted out-of-band
// for dashboards and downstream pipelines.
type JobEvent struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	CurrentWorker int    `json:"current_worker"`
}
