package stage

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/seqlab/annopipe/shared/rabbitmq"
)

// maxPollBatch bounds how many already-buffered deliveries one Poll drains.
const maxPollBatch = 10

// AMQPQueue adapts a RabbitMQ queue to the Queue interface.
//
// RetryLater publishes a copy of the body to the queue's delay queue and acks
// the original; the broker routes the copy back to the work queue after the
// configured retry delay. Reject nacks without requeue, which the queue's
// dead-letter exchange routes to "<queue>.dead".
type AMQPQueue struct {
	client      *rabbitmq.Client
	name        string
	consumerTag string
	deliveries  <-chan amqp.Delivery
}

// NewAMQPQueue creates an adapter for the named queue.
func NewAMQPQueue(client *rabbitmq.Client, name, consumerTag string) *AMQPQueue {
	return &AMQPQueue{
		client:      client,
		name:        name,
		consumerTag: consumerTag,
	}
}

// Poll waits up to wait for the first delivery, then drains whatever the
// consumer has already buffered, up to maxPollBatch.
func (q *AMQPQueue) Poll(ctx context.Context, wait time.Duration) ([]Delivery, error) {
	if q.deliveries == nil {
		deliveries, err := q.client.Consume(q.name, q.consumerTag)
		if err != nil {
			return nil, fmt.Errorf("failed to start consumer on %q: %w", q.name, err)
		}
		q.deliveries = deliveries
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var out []Delivery

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case d, ok := <-q.deliveries:
		if !ok {
			q.deliveries = nil
			return nil, fmt.Errorf("delivery channel for %q closed", q.name)
		}
		out = append(out, Delivery{Body: d.Body, Receipt: d})
	}

	for len(out) < maxPollBatch {
		select {
		case d, ok := <-q.deliveries:
			if !ok {
				q.deliveries = nil
				return out, nil
			}
			out = append(out, Delivery{Body: d.Body, Receipt: d})
		default:
			return out, nil
		}
	}

	return out, nil
}

// Ack acknowledges the delivery.
func (q *AMQPQueue) Ack(_ context.Context, d Delivery) error {
	del, err := q.receipt(d)
	if err != nil {
		return err
	}
	return del.Ack(false)
}

// RetryLater defers the delivery via the queue's delay queue. The copy is
// published before the original is acked so a crash in between yields a
// duplicate, never a loss.
func (q *AMQPQueue) RetryLater(ctx context.Context, d Delivery) error {
	del, err := q.receipt(d)
	if err != nil {
		return err
	}

	if err := q.client.Requeue(ctx, q.name, del.Body); err != nil {
		return err
	}

	return del.Ack(false)
}

// Reject routes the delivery to the dead-letter queue.
func (q *AMQPQueue) Reject(_ context.Context, d Delivery) error {
	del, err := q.receipt(d)
	if err != nil {
		return err
	}
	return del.Nack(false, false)
}

func (q *AMQPQueue) receipt(d Delivery) (amqp.Delivery, error) {
	del, ok := d.Receipt.(amqp.Delivery)
	if !ok {
		return amqp.Delivery{}, fmt.Errorf("delivery receipt is not an AMQP delivery")
	}
	return del, nil
}
