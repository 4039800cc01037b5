package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erauner12/ticketbridge/internal/storage"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// queryTimeout bounds every typed-table query. Webhook handlers run on
// contexts without cancellation, so without an explicit deadline a hung
// backend would pin an in-flight handler past the consumer's drain window.
const queryTimeout = 60 * time.Second

// MappingStatus is the lifecycle state of a thread/ticket mapping.
type MappingStatus string

const (
	StatusActive   MappingStatus = "active"
	StatusClosed   MappingStatus = "closed"
	StatusArchived MappingStatus = "archived"
)

// Valid reports whether s is one of the schema-enforced statuses.
func (s MappingStatus) Valid() bool {
	switch s {
	case StatusActive, StatusClosed, StatusArchived:
		return true
	}
	return false
}

// Customer links a chat-side user to their ticket-platform customer record.
type Customer struct {
	ID               int       `json:"id"`
	ChatUserID       string    `json:"chat_user_id"`
	TicketCustomerID *string   `json:"ticket_customer_id,omitempty"`
	Email            *string   `json:"email,omitempty"`
	Username         string    `json:"username"`
	DisplayName      *string   `json:"display_name,omitempty"`
	AvatarURL        *string   `json:"avatar_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Mapping is the bijection between a chat thread and a ticket. Both sides
// are uniquely indexed; a thread maps to exactly one ticket and vice versa.
type Mapping struct {
	ID            int           `json:"id"`
	ChatThreadID  string        `json:"chat_thread_id"`
	TicketID      string        `json:"ticket_id"`
	ChatChannelID *string       `json:"chat_channel_id,omitempty"`
	CustomerID    *int          `json:"customer_id,omitempty"`
	Status        MappingStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Store exposes typed operations for customers, mappings and bot config on
// top of the storage engine (caching) and the durable pool (typed tables).
//
// A Store is constructed once at startup and passed down explicitly; there
// is deliberately no package-level instance.
type Store struct {
	db       *pgxpool.Pool
	cache    *storage.Engine
	cacheTTL time.Duration
}

// New creates a Store. cacheTTL bounds how long mirror keys live in the
// cache tiers; zero picks one hour.
func New(db *pgxpool.Pool, cache *storage.Engine, cacheTTL time.Duration) *Store {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Store{db: db, cache: cache, cacheTTL: cacheTTL}
}

// Cache exposes the underlying engine for the ops surface.
func (s *Store) Cache() *storage.Engine { return s.cache }

// queryCtx derives the per-query context for typed-table access. A sooner
// caller deadline still wins.
func (s *Store) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}
