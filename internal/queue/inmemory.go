package queue

import (
	"context"
	"fmt"
	"sync"
)

const inMemoryDepth = 1024

// InMemory is a process-local queue used by tests and the single-binary
// dev deployment. It honors the same at-least-once contract as the
// broker-backed implementation: a requeued delivery comes back.
type InMemory struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	closed bool
}

var _ Queue = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{queues: make(map[string]chan []byte)}
}

func (q *InMemory) get(queueName string) (chan []byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, fmt.Errorf("queue closed")
	}
	ch, ok := q.queues[queueName]
	if !ok {
		ch = make(chan []byte, inMemoryDepth)
		q.queues[queueName] = ch
	}
	return ch, nil
}

func (q *InMemory) Publish(ctx context.Context, queueName string, body []byte) error {
	ch, err := q.get(queueName)
	if err != nil {
		return err
	}
	select {
	case ch <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue %s full", queueName)
	}
}

func (q *InMemory) Consume(ctx context.Context, queueName string) (<-chan Delivery, error) {
	ch, err := q.get(queueName)
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case body, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- &inMemoryDelivery{body: body, q: q, queueName: queueName}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *InMemory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

type inMemoryDelivery struct {
	body      []byte
	q         *InMemory
	queueName string
}

func (d *inMemoryDelivery) Body() []byte { return d.body }

func (d *inMemoryDelivery) Ack() error { return nil }

func (d *inMemoryDelivery) Requeue() error {
	return d.q.Publish(context.Background(), d.queueName, d.body)
}
