package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sink receives finished events: the memory store, the Kafka sink or a queue.
type Sink interface {
	Append(ctx context.Context, ev Event) error
}

// Publisher stamps events and hands them to every sink. It is append-only; a
// failing sink does not stop the others, the first error is returned.
type Publisher struct {
	sinks []Sink
	now   func() time.Time
}

func NewPublisher(sinks ...Sink) *Publisher {
	return &Publisher{sinks: sinks, now: time.Now}
}

func (p *Publisher) Emit(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	var first error
	for _, sink := range p.sinks {
		if err := sink.Append(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
