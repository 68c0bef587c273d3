// Package stage provides the single polling loop shared by every queue
// consumer in the pipeline. A stage is a queue plus a handler; the handler
// returns an explicit outcome and the runner applies it to the queue.
package stage

import (
	"context"
	"log/slog"
	"time"
)

// Outcome is a handler's decision for one delivery.
type Outcome int

const (
	// Ack removes the message from the queue; processing is done.
	Ack Outcome = iota

	// RetryLater defers the message so it is redelivered after the queue's
	// retry delay. Used for transient failures and not-yet-due work.
	RetryLater

	// Reject routes the message to the queue's dead-letter companion for
	// inspection. Used for malformed payloads and permanent failures.
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case RetryLater:
		return "retry_later"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Delivery is one received message. Receipt is the queue implementation's
// acknowledgement handle and is passed back on Ack/RetryLater/Reject.
type Delivery struct {
	Body    []byte
	Receipt any
}

// Queue is an at-least-once message source with explicit acknowledgement.
// Poll blocks up to wait and returns an empty slice on timeout.
type Queue interface {
	Poll(ctx context.Context, wait time.Duration) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	RetryLater(ctx context.Context, d Delivery) error
	Reject(ctx context.Context, d Delivery) error
}

// Handler processes one message body and decides its fate. Handlers must be
// idempotent: the queue may deliver the same message more than once.
type Handler func(ctx context.Context, body []byte) Outcome

// Runner drives one stage: poll, handle, apply outcome.
type Runner struct {
	name     string
	queue    Queue
	handler  Handler
	logger   *slog.Logger
	pollWait time.Duration
}

// NewRunner creates a stage runner.
func NewRunner(name string, queue Queue, handler Handler, logger *slog.Logger, pollWait time.Duration) *Runner {
	if pollWait <= 0 {
		pollWait = 10 * time.Second
	}

	return &Runner{
		name:     name,
		queue:    queue,
		handler:  handler,
		logger:   logger,
		pollWait: pollWait,
	}
}

// Run polls until ctx is canceled. Poll errors are logged and retried after a
// short pause so a broken connection does not spin the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Stage started",
		slog.String("stage", r.name),
		slog.Duration("poll_wait", r.pollWait),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stage stopped - context canceled",
				slog.String("stage", r.name),
			)
			return ctx.Err()
		default:
		}

		deliveries, err := r.queue.Poll(ctx, r.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Error("Failed to poll queue",
				slog.String("stage", r.name),
				slog.Any("error", err),
			)
			select {
			case <-ctx.Done():
			case <-time.After(r.pollWait):
			}
			continue
		}

		for _, d := range deliveries {
			r.process(ctx, d)
		}
	}
}

func (r *Runner) process(ctx context.Context, d Delivery) {
	outcome := r.handler(ctx, d.Body)

	var err error
	switch outcome {
	case Ack:
		err = r.queue.Ack(ctx, d)
	case RetryLater:
		err = r.queue.RetryLater(ctx, d)
	case Reject:
		err = r.queue.Reject(ctx, d)
	}

	if err != nil {
		// The message stays unacknowledged and will be redelivered.
		r.logger.Error("Failed to apply outcome",
			slog.String("stage", r.name),
			slog.String("outcome", outcome.String()),
			slog.Any("error", err),
		)
		return
	}

	r.logger.Debug("Message processed",
		slog.String("stage", r.name),
		slog.String("outcome", outcome.String()),
	)
}
