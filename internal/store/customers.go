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

const customerColumns = `id, chat_user_id, ticket_customer_id, email, username, display_name, avatar_url, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.ChatUserID, &c.TicketCustomerID, &c.Email,
		&c.Username, &c.DisplayName, &c.AvatarURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpsertCustomer creates or updates the customer keyed by chat user id,
// then mirrors the row under both cache keys.
//
// COALESCE keeps present fields from being overwritten by absent ones, and
// ticket_customer_id is immutable once set: the existing value wins over
// any later input.
func (s *Store) UpsertCustomer(ctx context.Context, in Customer) (*Customer, error) {
	if in.ChatUserID == "" {
		return nil, fmt.Errorf("store: upsert customer: chat_user_id is required")
	}
	if in.Username == "" {
		return nil, fmt.Errorf("store: upsert customer: username is required")
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	row := s.db.QueryRow(qctx, `
		INSERT INTO customers (chat_user_id, ticket_customer_id, email, username, display_name, avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chat_user_id) DO UPDATE SET
			ticket_customer_id = COALESCE(customers.ticket_customer_id, EXCLUDED.ticket_customer_id),
			email              = COALESCE(EXCLUDED.email, customers.email),
			username           = COALESCE(EXCLUDED.username, customers.username),
			display_name       = COALESCE(EXCLUDED.display_name, customers.display_name),
			avatar_url         = COALESCE(EXCLUDED.avatar_url, customers.avatar_url),
			updated_at         = now()
		RETURNING `+customerColumns,
		in.ChatUserID, in.TicketCustomerID, in.Email, in.Username, in.DisplayName, in.AvatarURL)

	c, err := scanCustomer(row)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}

	s.warmCustomer(ctx, c)
	return c, nil
}

// warmCustomer writes the customer under both cache keys as a best-effort
// parallel pair. The durable row is already committed; a failed mirror
// write converges on the next read or when the TTL elapses.
func (s *Store) warmCustomer(ctx context.Context, c *Customer) {
	data, err := json.Marshal(c)
	if err != nil {
		log.Error().Err(err).Str("chat_user_id", c.ChatUserID).Msg("marshal customer for cache")
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.cache.Set(ctx, customerChatKey(c.ChatUserID), data, s.cacheTTL); err != nil {
			log.Warn().Err(err).Str("chat_user_id", c.ChatUserID).Msg("cache customer by chat id")
		}
	}()
	if c.TicketCustomerID != nil && *c.TicketCustomerID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.cache.Set(ctx, customerTicketKey(*c.TicketCustomerID), data, s.cacheTTL); err != nil {
				log.Warn().Err(err).Str("ticket_customer_id", *c.TicketCustomerID).Msg("cache customer by ticket id")
			}
		}()
	}
	wg.Wait()
}

// GetCustomerByChatID resolves a customer by chat user id, reading through
// the cache hierarchy before touching the typed table.
func (s *Store) GetCustomerByChatID(ctx context.Context, chatUserID string) (*Customer, error) {
	if c, ok := s.cachedCustomer(ctx, customerChatKey(chatUserID)); ok {
		return c, nil
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	c, err := scanCustomer(s.db.QueryRow(qctx,
		`SELECT `+customerColumns+` FROM customers WHERE chat_user_id = $1`, chatUserID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get customer by chat id: %w", err)
	}

	// Durable hit: warm both keys so the next lookup by either id is O(1).
	s.warmCustomer(ctx, c)
	return c, nil
}

// GetCustomerByTicketID resolves a customer by ticket-platform customer id.
// On a durable hit both mirror keys are warmed.
func (s *Store) GetCustomerByTicketID(ctx context.Context, ticketCustID string) (*Customer, error) {
	if c, ok := s.cachedCustomer(ctx, customerTicketKey(ticketCustID)); ok {
		return c, nil
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	c, err := scanCustomer(s.db.QueryRow(qctx,
		`SELECT `+customerColumns+` FROM customers WHERE ticket_customer_id = $1`, ticketCustID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get customer by ticket id: %w", err)
	}

	s.warmCustomer(ctx, c)
	return c, nil
}

// cachedCustomer tries the cache hierarchy. Cache errors never surface;
// a decode failure just falls through to the typed table.
func (s *Store) cachedCustomer(ctx context.Context, key string) (*Customer, bool) {
	res, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("customer cache read failed")
		}
		return nil, false
	}
	var c Customer
	if err := json.Unmarshal(res.Data, &c); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("stale customer cache entry")
		return nil, false
	}
	return &c, true
}
