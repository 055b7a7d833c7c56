package audit

import (
	"context"
	"errors"
	"log/slog"
)

// ErrQueueFull is returned when the queue cannot take another event.
var ErrQueueFull = errors.New("audit queue full")

// Queue is a non-blocking Sink in front of a slow one. Events are dropped, not
// waited on, when the buffer is full so lifecycle operations never stall on the
// event stream.
type Queue struct {
	inbox chan Event
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{inbox: make(chan Event, size)}
}

func (q *Queue) Append(_ context.Context, ev Event) error {
	select {
	case q.inbox <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Worker drains a Queue into a sink until its context ends, then flushes what is
// already buffered.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(q *Queue, sink Sink, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: q.inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return nil
		case ev := <-w.inbox:
			w.deliver(ctx, ev)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case ev := <-w.inbox:
			w.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (w *Worker) deliver(ctx context.Context, ev Event) {
	if err := w.sink.Append(ctx, ev); err != nil {
		w.logger.WarnContext(ctx, "audit event not delivered",
			"event_id", ev.ID,
			"action", ev.Action,
			"identity_id", ev.IdentityID,
			"error", err,
		)
	}
}
