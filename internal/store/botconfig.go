package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/erauner12/ticketbridge/internal/storage"
)

// SetBotConfig stores an arbitrary JSON value under bot:config:<key>.
// ttl == 0 keeps the entry until it is deleted.
func (s *Store) SetBotConfig(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	return s.cache.Set(ctx, botConfigKey(key), value, ttl)
}

// GetBotConfig reads a bot config value through the cache hierarchy.
func (s *Store) GetBotConfig(ctx context.Context, key string) (json.RawMessage, error) {
	res, err := s.cache.Get(ctx, botConfigKey(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return res.Data, nil
}

// DeleteBotConfig removes a bot config value from every tier.
func (s *Store) DeleteBotConfig(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, botConfigKey(key))
}

// ClearCache deletes a single cached entry named by a validated pattern
// and id. Unknown patterns are rejected before they can touch the key
// space.
func (s *Store) ClearCache(ctx context.Context, pattern ClearPattern, id string) error {
	key, err := keyFor(pattern, id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, key)
}
