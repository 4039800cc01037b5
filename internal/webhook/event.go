package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType identifies a webhook event on the wire.
type EventType string

const (
	// EventMessageCreated is an agent reply inbound from the ticket platform.
	EventMessageCreated EventType = "conversation.message.created"
	// EventMessageCreatedAlias is the legacy name some producers still emit.
	EventMessageCreatedAlias EventType = "message_created"
	// EventStatusUpdated signals a ticket status change.
	EventStatusUpdated EventType = "conversation.status.updated"
	// EventConversationCreated signals a new ticket.
	EventConversationCreated EventType = "conversation.created"
)

// ErrInvalidEvent wraps every validation failure; events failing
// validation are dropped at warn, never retried.
var ErrInvalidEvent = errors.New("webhook: invalid event")

// Event is one queue item, decoded. Producers vary in where they put the
// conversation id and message body, so EventData keeps the raw shapes and
// accessors normalise them.
type Event struct {
	Type EventType `json:"type"`
	Data EventData `json:"data"`

	// ReceivedAt is set when the event is popped, for observability only.
	ReceivedAt time.Time `json:"-"`
}

// EventData mirrors the producer payload variants described in the wire
// contract.
type EventData struct {
	ConversationID string `json:"conversationId"`
	ID             string `json:"id"`
	Conversation   *struct {
		ID string `json:"id"`
	} `json:"conversation"`
	Message *struct {
		Markdown string `json:"markdown"`
	} `json:"message"`
	Text        string       `json:"text"`
	Status      string       `json:"status"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is metadata only; binary handling lives elsewhere.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

// ConversationRef returns the ticket-side conversation id wherever the
// producer put it: data.conversationId, data.conversation.id or data.id.
func (d EventData) ConversationRef() string {
	if d.ConversationID != "" {
		return d.ConversationID
	}
	if d.Conversation != nil && d.Conversation.ID != "" {
		return d.Conversation.ID
	}
	return d.ID
}

// Content returns the message body, preferring markdown over plain text.
func (d EventData) Content() string {
	if d.Message != nil && d.Message.Markdown != "" {
		return d.Message.Markdown
	}
	return d.Text
}

// ParseEvent decodes one queue item and validates its structure.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	ev.normalize()
	if err := ev.validate(); err != nil {
		return nil, err
	}
	ev.ReceivedAt = time.Now()
	return &ev, nil
}

// normalize collapses the legacy alias onto the canonical type so routing
// and handlers only ever see one name.
func (e *Event) normalize() {
	if e.Type == EventMessageCreatedAlias {
		e.Type = EventMessageCreated
	}
}

// validate enforces the per-type required fields. Unknown types pass here
// and are dropped with a warn at dispatch.
func (e *Event) validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	if e.Data.ConversationRef() == "" {
		return fmt.Errorf("%w: %s: missing conversation id", ErrInvalidEvent, e.Type)
	}
	if e.Type == EventMessageCreated && e.Data.Content() == "" {
		return fmt.Errorf("%w: %s: missing message content", ErrInvalidEvent, e.Type)
	}
	return nil
}
