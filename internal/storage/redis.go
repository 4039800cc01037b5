package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redisConnectTimeout  = 10 * time.Second
	redisMaxRetryBackoff = 3 * time.Second
	redisKeepAlivePeriod = 30 * time.Second
)

// Redis is the distributed L2 tier. It is strictly best-effort: when the
// backend is unreachable, reads report absence and writes report
// ErrNotConnected, and the engine carries on with the other tiers.
type Redis struct {
	client *redis.Client
	cancel context.CancelFunc
}

// NewRedis connects to the cache backend. The client reconnects on its own
// with exponential backoff capped at 3s; a background goroutine pings every
// 30s to keep the connection warm and surface outages in the logs.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opt.DialTimeout = redisConnectTimeout
	opt.MaxRetries = 3
	opt.MaxRetryBackoff = redisMaxRetryBackoff

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		// Not fatal: the tier stays degraded until the backend comes up.
		log.Warn().Err(err).Msg("redis cache unavailable at startup, continuing degraded")
	}

	pingCtx, cancel := context.WithCancel(context.Background())
	r := &Redis{client: client, cancel: cancel}
	go r.keepAlive(pingCtx)

	return r, nil
}

func (r *Redis) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(redisKeepAlivePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.client.Ping(ctx).Err(); err != nil {
				log.Warn().Err(err).Msg("redis keep-alive ping failed")
			}
		}
	}
}

// Get returns the value for key. Backend failures are reported as absence
// so callers fall through to the durable tier.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("key", key).Msg("redis get failed")
		}
		return nil, ErrNotFound
	}
	return data, nil
}

// Set stores data under key. ttl == 0 persists until the server evicts it.
func (r *Redis) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("redis exists failed")
		return false, nil
	}
	return n > 0, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	r.cancel()
	return r.client.Close()
}
