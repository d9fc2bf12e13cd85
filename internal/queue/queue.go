// Package queue is the message channel between the scheduler and the
// worker fleet. Delivery is at-least-once in both directions: consumers
// acknowledge only after durable handling and the scheduler absorbs
// duplicates idempotently.
package queue

import "context"

// Well-known queues. Dispatches go to one queue per worker type;
// everything flowing back to the scheduler has its own queue.
const (
	ResultsQueue   = "scheduler.results"
	ClaimsQueue    = "scheduler.claims"
	JobLogQueue    = "scheduler.logs.job"
	SystemLogQueue = "scheduler.logs.system"
)

// DispatchQueue names the dispatch queue of a worker type.
func DispatchQueue(workerType string) string {
	return "work." + workerType
}

// ControlQueue names the per-host control queue used for best-effort
// cancel notifications.
func ControlQueue(hostname string) string {
	return "workers." + hostname + ".control"
}

// Delivery is one consumed message. Ack removes it from the queue;
// Requeue makes it available for redelivery.
type Delivery interface {
	Body() []byte
	Ack() error
	Requeue() error
}

type Queue interface {
	Publish(ctx context.Context, queueName string, body []byte) error
	// Consume returns a channel of deliveries for the named queue. The
	// channel closes when the context is cancelled or the queue shuts
	// down.
	Consume(ctx context.Context, queueName string) (<-chan Delivery, error)
	Close() error
}
