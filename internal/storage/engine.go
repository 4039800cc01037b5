package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DurableTier is the L3 contract: the generic Tier operations plus the
// TTL sweep.
type DurableTier interface {
	Tier
	Sweep(ctx context.Context) (int, error)
}

// Engine composes the three tiers into one read-through / write-through
// store. It is the only writer into the tiers; everything above it (the
// domain store) goes through Get/Set/Delete.
//
// Reads walk L1 -> L2 -> L3 and warm the faster tiers on the way back.
// Writes hit L3 first; only after the durable row exists are the caches
// warmed, so a cached value always has (or had) a durable backing row.
type Engine struct {
	l1 *Memory
	l2 Tier
	l3 DurableTier

	defaultTTL time.Duration
	metrics    *Metrics
	group      singleflight.Group
}

// EngineConfig carries the engine's tunables.
type EngineConfig struct {
	// DefaultTTL is applied when warming caches from a lower tier.
	DefaultTTL time.Duration
	Metrics    *Metrics
}

// NewEngine wires the tiers together. l2 may be nil when the cache backend
// is not configured; the engine then runs two-tier.
func NewEngine(l1 *Memory, l2 Tier, l3 DurableTier, cfg EngineConfig) *Engine {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	return &Engine{
		l1:         l1,
		l2:         l2,
		l3:         l3,
		defaultTTL: cfg.DefaultTTL,
		metrics:    cfg.Metrics,
	}
}

// Get reads key through the tier hierarchy. Concurrent reads of the same
// key are collapsed into one tier walk.
func (e *Engine) Get(ctx context.Context, key string) (Result, error) {
	v, err, _ := e.group.Do(key, func() (any, error) {
		return e.get(ctx, key)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (e *Engine) get(ctx context.Context, key string) (Result, error) {
	if data, err := e.l1.Get(ctx, key); err == nil {
		e.metrics.hit(LayerMemory)
		return Result{Data: data, Layer: LayerMemory, CacheHit: true}, nil
	}

	if e.l2 != nil {
		if data, err := e.l2.Get(ctx, key); err == nil {
			e.metrics.hit(LayerRedis)
			if err := e.l1.Set(ctx, key, data, e.defaultTTL); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("l1 warm-back failed")
			}
			return Result{Data: data, Layer: LayerRedis, CacheHit: true}, nil
		}
	}

	data, err := e.l3.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metrics.miss()
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	e.metrics.hit(LayerPostgres)
	e.warmCaches(ctx, key, data, e.defaultTTL)
	e.metrics.setL1Size(e.l1.Len())
	return Result{Data: data, Layer: LayerPostgres, CacheHit: false}, nil
}

// Set writes key durably, then warms the caches. The durable write must
// succeed before any cache is touched; cache failures are logged only.
func (e *Engine) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidTTL
	}
	if err := e.l3.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	e.metrics.write()
	e.warmCaches(ctx, key, data, ttl)
	e.metrics.setL1Size(e.l1.Len())
	return nil
}

// warmCaches populates L1 and L2 in parallel and waits for both. Failures
// are logged, never surfaced: the durable row is already in place.
func (e *Engine) warmCaches(ctx context.Context, key string, data []byte, ttl time.Duration) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := e.l1.Set(ctx, key, data, ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("l1 warm failed")
		}
	}()
	if e.l2 != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.l2.Set(ctx, key, data, ttl); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("l2 warm failed")
			}
		}()
	}
	wg.Wait()
}

// Delete removes key from every tier. Cache failures are swallowed so the
// durable deletion is never blocked; only the durable error surfaces.
func (e *Engine) Delete(ctx context.Context, key string) error {
	if err := e.l1.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("l1 delete failed")
	}
	if e.l2 != nil {
		if err := e.l2.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("l2 delete failed")
		}
	}
	if err := e.l3.Delete(ctx, key); err != nil {
		return err
	}
	e.metrics.delete()
	e.metrics.setL1Size(e.l1.Len())
	return nil
}

// Exists reports whether any tier holds an unexpired entry for key.
func (e *Engine) Exists(ctx context.Context, key string) (bool, error) {
	if ok, _ := e.l1.Exists(ctx, key); ok {
		return true, nil
	}
	if e.l2 != nil {
		if ok, _ := e.l2.Exists(ctx, key); ok {
			return true, nil
		}
	}
	return e.l3.Exists(ctx, key)
}

// Sweep removes expired rows from the durable tier.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	return e.l3.Sweep(ctx)
}

// ClearMemory drops every L1 entry. Used by the admin surface and tests.
func (e *Engine) ClearMemory() {
	e.l1.Clear()
	e.metrics.setL1Size(0)
}

// HealthCheck pings each tier independently.
func (e *Engine) HealthCheck(ctx context.Context) map[string]bool {
	health := map[string]bool{
		"memory":   e.l1.Ping(ctx) == nil,
		"postgres": e.l3.Ping(ctx) == nil,
	}
	if e.l2 != nil {
		health["redis"] = e.l2.Ping(ctx) == nil
	} else {
		health["redis"] = false
	}
	return health
}

// Stats returns the metrics snapshot for the ops surface.
func (e *Engine) Stats() Stats {
	return e.metrics.Snapshot(e.l1.Len())
}
