package webhook

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Handler processes one validated event. Handlers must be idempotent: the
// queue is at-least-once and a redelivered event will reach the same
// handler again.
type Handler func(ctx context.Context, ev *Event) error

// TransientError marks handler failures that are expected to resolve on
// their own, such as a lookup racing mapping propagation when the producer
// will redeliver. The consumer logs these at warn instead of error.
type TransientError interface {
	error
	Transient() bool
}

// Dispatcher is a pure routing table from event type to handler. It holds
// no other state; registration happens once at startup, before Start, so
// no locking is needed on the dispatch path.
type Dispatcher struct {
	handlers map[EventType]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventType]Handler)}
}

// Register installs h for event type t, replacing any previous handler.
func (d *Dispatcher) Register(t EventType, h Handler) {
	d.handlers[t] = h
}

// Dispatch routes ev to its handler. Events with no registered handler are
// dropped with a warn; handler errors propagate to the consumer, which
// logs them with the conversation id.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) error {
	h, ok := d.handlers[ev.Type]
	if !ok {
		log.Warn().
			Str("type", string(ev.Type)).
			Str("conversation_id", ev.Data.ConversationRef()).
			Msg("no handler registered, dropping event")
		return nil
	}
	return h(ctx, ev)
}
