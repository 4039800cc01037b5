package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/ticketbridge/internal/storage"
)

const mappingColumns = `id, chat_thread_id, ticket_id, chat_channel_id, customer_id, status, created_at, updated_at`

func scanMapping(row pgx.Row) (*Mapping, error) {
	var m Mapping
	err := row.Scan(&m.ID, &m.ChatThreadID, &m.TicketID, &m.ChatChannelID,
		&m.CustomerID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// UpsertMapping persists the thread/ticket mapping durably, then mirrors
// it under both cache keys.
//
// The durable write completes before this returns, so a caller that sends
// the first message into the thread only after UpsertMapping succeeds can
// never lose the race against an inbound webhook for the same ticket.
func (s *Store) UpsertMapping(ctx context.Context, in Mapping) (*Mapping, error) {
	if in.ChatThreadID == "" || in.TicketID == "" {
		return nil, fmt.Errorf("store: upsert mapping: chat_thread_id and ticket_id are required")
	}
	if in.Status == "" {
		in.Status = StatusActive
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("store: upsert mapping: invalid status %q", in.Status)
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	row := s.db.QueryRow(qctx, `
		INSERT INTO thread_ticket_mappings (chat_thread_id, ticket_id, chat_channel_id, customer_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chat_thread_id) DO UPDATE SET
			ticket_id       = EXCLUDED.ticket_id,
			chat_channel_id = COALESCE(EXCLUDED.chat_channel_id, thread_ticket_mappings.chat_channel_id),
			customer_id     = COALESCE(EXCLUDED.customer_id, thread_ticket_mappings.customer_id),
			status          = EXCLUDED.status,
			updated_at      = now()
		RETURNING `+mappingColumns,
		in.ChatThreadID, in.TicketID, in.ChatChannelID, in.CustomerID, in.Status)

	m, err := scanMapping(row)
	if err != nil {
		return nil, fmt.Errorf("upsert mapping: %w", err)
	}

	s.warmMapping(ctx, m)
	return m, nil
}

// UpdateMappingStatus moves the mapping for ticketID to status and
// refreshes both mirror keys.
func (s *Store) UpdateMappingStatus(ctx context.Context, ticketID string, status MappingStatus) (*Mapping, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("store: update mapping status: invalid status %q", status)
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	row := s.db.QueryRow(qctx, `
		UPDATE thread_ticket_mappings
		SET status = $2, updated_at = now()
		WHERE ticket_id = $1
		RETURNING `+mappingColumns, ticketID, status)

	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update mapping status: %w", err)
	}

	s.warmMapping(ctx, m)
	return m, nil
}

// warmMapping issues the bidirectional mirror writes as a best-effort
// parallel pair after the durable upsert. If one side fails the caches may
// disagree until the TTL elapses or the next read warms both; the durable
// row stays authoritative.
func (s *Store) warmMapping(ctx context.Context, m *Mapping) {
	data, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Str("chat_thread_id", m.ChatThreadID).Msg("marshal mapping for cache")
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.cache.Set(ctx, mappingThreadKey(m.ChatThreadID), data, s.cacheTTL); err != nil {
			log.Warn().Err(err).Str("chat_thread_id", m.ChatThreadID).Msg("cache mapping by thread")
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.cache.Set(ctx, mappingTicketKey(m.TicketID), data, s.cacheTTL); err != nil {
			log.Warn().Err(err).Str("ticket_id", m.TicketID).Msg("cache mapping by ticket")
		}
	}()
	wg.Wait()
}

// GetMappingByThread resolves the mapping for a chat thread id.
func (s *Store) GetMappingByThread(ctx context.Context, threadID string) (*Mapping, error) {
	if m, ok := s.cachedMapping(ctx, mappingThreadKey(threadID)); ok {
		return m, nil
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	m, err := scanMapping(s.db.QueryRow(qctx,
		`SELECT `+mappingColumns+` FROM thread_ticket_mappings WHERE chat_thread_id = $1`, threadID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get mapping by thread: %w", err)
	}

	s.warmMapping(ctx, m)
	return m, nil
}

// GetMappingByTicket resolves the mapping for a ticket id.
func (s *Store) GetMappingByTicket(ctx context.Context, ticketID string) (*Mapping, error) {
	if m, ok := s.cachedMapping(ctx, mappingTicketKey(ticketID)); ok {
		return m, nil
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	m, err := scanMapping(s.db.QueryRow(qctx,
		`SELECT `+mappingColumns+` FROM thread_ticket_mappings WHERE ticket_id = $1`, ticketID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get mapping by ticket: %w", err)
	}

	s.warmMapping(ctx, m)
	return m, nil
}

func (s *Store) cachedMapping(ctx context.Context, key string) (*Mapping, bool) {
	res, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("mapping cache read failed")
		}
		return nil, false
	}
	var m Mapping
	if err := json.Unmarshal(res.Data, &m); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("stale mapping cache entry")
		return nil, false
	}
	return &m, true
}
