package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RoutesByType(t *testing.T) {
	d := NewDispatcher()

	var got *Event
	d.Register(EventMessageCreated, func(_ context.Context, ev *Event) error {
		got = ev
		return nil
	})
	d.Register(EventStatusUpdated, func(_ context.Context, _ *Event) error {
		t.Fatal("wrong handler invoked")
		return nil
	})

	ev := &Event{Type: EventMessageCreated, Data: EventData{ConversationID: "T1"}}
	require.NoError(t, d.Dispatch(context.Background(), ev))
	assert.Same(t, ev, got)
}

func TestDispatcher_UnknownTypeDropped(t *testing.T) {
	d := NewDispatcher()
	d.Register(EventMessageCreated, func(_ context.Context, _ *Event) error {
		t.Fatal("handler must not run for unknown type")
		return nil
	})

	err := d.Dispatch(context.Background(), &Event{Type: "conversation.deleted"})
	assert.NoError(t, err, "unknown types are dropped, not errors")
}

func TestDispatcher_HandlerErrorPropagates(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")
	d.Register(EventMessageCreated, func(_ context.Context, _ *Event) error {
		return boom
	})

	err := d.Dispatch(context.Background(), &Event{Type: EventMessageCreated})
	assert.ErrorIs(t, err, boom)
}
