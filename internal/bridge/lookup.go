package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/ticketbridge/internal/store"
)

// MappingNotFoundError reports that no thread mapping exists for a ticket
// after the retry budget is spent. LikelyRace classifies the failure:
// webhooks can arrive before the producing side's mapping write has
// propagated, and a miss that exhausted its attempts inside the race
// window is logged at warn rather than error.
type MappingNotFoundError struct {
	TicketID   string
	Attempts   int
	Elapsed    time.Duration
	LikelyRace bool
}

func (e *MappingNotFoundError) Error() string {
	return fmt.Sprintf("bridge: no mapping for ticket %s after %d attempts in %s (likely_race_condition=%t)",
		e.TicketID, e.Attempts, e.Elapsed.Round(time.Millisecond), e.LikelyRace)
}

// Transient reports whether the miss is probably mapping propagation lag
// that the producer's redelivery will resolve. The consumer uses this to
// log the failure at warn instead of error.
func (e *MappingNotFoundError) Transient() bool { return e.LikelyRace }

// MappingSource is the slice of the domain store the lookup needs.
type MappingSource interface {
	GetMappingByTicket(ctx context.Context, ticketID string) (*store.Mapping, error)
}

// LookupConfig tunes the retry policy.
type LookupConfig struct {
	MaxAttempts int           // default 3
	Window      time.Duration // race-classification window, default 10s
	BaseDelay   time.Duration // default 1s
	MaxDelay    time.Duration // backoff cap, default 5s
}

// Lookup resolves ticket ids to chat threads, absorbing mapping
// propagation lag with bounded exponential backoff.
type Lookup struct {
	store MappingSource
	chat  ChatPlatform
	cfg   LookupConfig
}

// NewLookup builds a Lookup over the mapping source and chat client.
func NewLookup(src MappingSource, chat ChatPlatform, cfg LookupConfig) *Lookup {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	return &Lookup{store: src, chat: chat, cfg: cfg}
}

// FindThreadByTicket resolves ticketID to its chat thread.
//
// Only the mapping-not-found failure mode is retried; store errors other
// than not-found and all chat-platform errors surface immediately. Delays
// double from BaseDelay with ~10% jitter, capped at MaxDelay.
func (l *Lookup) FindThreadByTicket(ctx context.Context, ticketID string) (*Thread, *store.Mapping, error) {
	start := time.Now()
	attempts := 0
	var mapping *store.Mapping

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.cfg.BaseDelay
	policy.Multiplier = 2
	policy.MaxInterval = l.cfg.MaxDelay
	policy.RandomizationFactor = 0.1
	policy.MaxElapsedTime = 0

	op := func() error {
		attempts++
		m, err := l.store.GetMappingByTicket(ctx, ticketID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Debug().Str("ticket_id", ticketID).Int("attempt", attempts).
					Msg("mapping not found yet, will retry")
				return err
			}
			return backoff.Permanent(err)
		}
		mapping = m
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(l.cfg.MaxAttempts-1)), ctx))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			elapsed := time.Since(start)
			return nil, nil, &MappingNotFoundError{
				TicketID:   ticketID,
				Attempts:   attempts,
				Elapsed:    elapsed,
				LikelyRace: elapsed < l.cfg.Window,
			}
		}
		return nil, nil, err
	}

	thread, err := l.chat.FetchThread(ctx, mapping.ChatThreadID)
	if err != nil {
		return nil, nil, fmt.Errorf("bridge: fetch thread %s: %w", mapping.ChatThreadID, err)
	}
	if !thread.IsThread {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotAThread, mapping.ChatThreadID)
	}
	return thread, mapping, nil
}
