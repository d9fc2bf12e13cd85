package queue

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQ carries the channel contract over an AMQP broker. Queues
// are declared durable on first use; published messages are persistent
// and consumers ack manually.
type RabbitMQ struct {
	conn *amqp.Connection

	mu       sync.Mutex
	declared map[string]bool
	pubChan  *amqp.Channel
}

var _ Queue = (*RabbitMQ)(nil)

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	pubChan, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening publish channel: %w", err)
	}
	return &RabbitMQ{
		conn:     conn,
		declared: make(map[string]bool),
		pubChan:  pubChan,
	}, nil
}

func (q *RabbitMQ) declare(ch *amqp.Channel, queueName string) error {
	q.mu.Lock()
	done := q.declared[queueName]
	q.mu.Unlock()
	if done {
		return nil
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", queueName, err)
	}

	q.mu.Lock()
	q.declared[queueName] = true
	q.mu.Unlock()
	return nil
}

func (q *RabbitMQ) Publish(ctx context.Context, queueName string, body []byte) error {
	q.mu.Lock()
	ch := q.pubChan
	q.mu.Unlock()

	if err := q.declare(ch, queueName); err != nil {
		return err
	}

	err := ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", queueName, err)
	}
	return nil
}

func (q *RabbitMQ) Consume(ctx context.Context, queueName string) (<-chan Delivery, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening consume channel: %w", err)
	}
	// one unacked message at a time per consumer
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := q.declare(ch, queueName); err != nil {
		_ = ch.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consuming %s: %w", queueName, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer func() {
			if err := ch.Close(); err != nil {
				zap.S().Named("rabbitmq").Warnw("failed to close channel", "queue", queueName, "error", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- &amqpDelivery{d: d}:
				case <-ctx.Done():
					// connection teardown will requeue the unacked message
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *RabbitMQ) Close() error {
	return q.conn.Close()
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (a *amqpDelivery) Body() []byte { return a.d.Body }

func (a *amqpDelivery) Ack() error { return a.d.Ack(false) }

func (a *amqpDelivery) Requeue() error { return a.d.Nack(false, true) }
