package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/ticketbridge/internal/store"
	"github.com/erauner12/ticketbridge/internal/webhook"
)

// TicketStore is the slice of the domain store the handlers need.
type TicketStore interface {
	MappingSource
	UpdateMappingStatus(ctx context.Context, ticketID string, status store.MappingStatus) (*store.Mapping, error)
}

// Handlers connects the webhook dispatcher to the domain store and the
// chat platform. One instance is wired at startup; nothing here is global.
type Handlers struct {
	store  TicketStore
	chat   ChatPlatform
	lookup *Lookup
}

// NewHandlers builds the chat-side event handlers.
func NewHandlers(ts TicketStore, chat ChatPlatform, lookup *Lookup) *Handlers {
	return &Handlers{store: ts, chat: chat, lookup: lookup}
}

// Register installs the handlers on d for every recognised event type.
// The message_created alias is normalised during parsing, so only
// canonical types appear here.
func (h *Handlers) Register(d *webhook.Dispatcher) {
	d.Register(webhook.EventMessageCreated, h.HandleMessageCreated)
	d.Register(webhook.EventStatusUpdated, h.HandleStatusUpdated)
	d.Register(webhook.EventConversationCreated, h.HandleConversationCreated)
}

// HandleMessageCreated relays an agent reply into the mapped chat thread.
func (h *Handlers) HandleMessageCreated(ctx context.Context, ev *webhook.Event) error {
	ticketID := ev.Data.ConversationRef()

	// A MappingNotFoundError propagates unwrapped; when it carries the race
	// classification the consumer logs it at warn, not error.
	thread, _, err := h.lookup.FindThreadByTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	if err := h.chat.SendMessage(ctx, thread.ID, ev.Data.Content()); err != nil {
		return fmt.Errorf("relay agent reply to thread %s: %w", thread.ID, err)
	}
	log.Info().Str("ticket_id", ticketID).Str("thread_id", thread.ID).Msg("agent reply relayed")
	return nil
}

// HandleStatusUpdated moves the mapping to the new status and posts a
// status note into the thread.
func (h *Handlers) HandleStatusUpdated(ctx context.Context, ev *webhook.Event) error {
	ticketID := ev.Data.ConversationRef()

	status, ok := mapTicketStatus(ev.Data.Status)
	if !ok {
		log.Warn().Str("ticket_id", ticketID).Str("status", ev.Data.Status).
			Msg("unrecognised ticket status, ignoring")
		return nil
	}

	thread, _, err := h.lookup.FindThreadByTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	if _, err := h.store.UpdateMappingStatus(ctx, ticketID, status); err != nil {
		return fmt.Errorf("update mapping status for ticket %s: %w", ticketID, err)
	}

	note := fmt.Sprintf("Ticket status changed to **%s**.", ev.Data.Status)
	if err := h.chat.SendMessage(ctx, thread.ID, note); err != nil {
		// The durable status change already landed; the note is cosmetic.
		log.Warn().Err(err).Str("thread_id", thread.ID).Msg("failed to post status note")
	}
	return nil
}

// HandleConversationCreated records ticket creation originating on the
// ticket platform. Thread creation for such tickets happens on the chat
// side out of band; if a mapping already exists this is the echo of our
// own ticket creation and nothing is left to do.
func (h *Handlers) HandleConversationCreated(ctx context.Context, ev *webhook.Event) error {
	ticketID := ev.Data.ConversationRef()

	if _, err := h.store.GetMappingByTicket(ctx, ticketID); err == nil {
		log.Debug().Str("ticket_id", ticketID).Msg("conversation.created for known ticket, ignoring echo")
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	log.Info().Str("ticket_id", ticketID).Msg("ticket created on ticket platform with no chat thread yet")
	return nil
}

// mapTicketStatus folds ticket-platform statuses onto mapping statuses.
func mapTicketStatus(s string) (store.MappingStatus, bool) {
	switch s {
	case "open", "pending", "active":
		return store.StatusActive, true
	case "closed", "resolved", "solved", "done":
		return store.StatusClosed, true
	case "archived", "spam":
		return store.StatusArchived, true
	}
	return "", false
}
