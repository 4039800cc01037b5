package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueEmpty is returned by Pop when the blocking wait expires with no
// element available.
var ErrQueueEmpty = errors.New("webhook: queue empty")

// Queue is the consumer's view of the event queue. The production
// implementation is backed by a redis list; tests substitute an in-memory
// fake.
type Queue interface {
	// Pop blocks for up to timeout waiting for the next raw event.
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	// Len returns the current queue depth.
	Len(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// redisQueue holds two dedicated clients: BLPOP parks its connection for
// the full block timeout, so queue inspection gets a connection of its own.
type redisQueue struct {
	pop     *redis.Client
	inspect *redis.Client
	name    string
}

// NewRedisQueue connects both clients to the queue backend.
func NewRedisQueue(ctx context.Context, url, name string) (Queue, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opt.DialTimeout = 10 * time.Second
	opt.MaxRetryBackoff = 3 * time.Second

	q := &redisQueue{
		pop:     redis.NewClient(opt),
		inspect: redis.NewClient(opt),
		name:    name,
	}
	if err := q.pop.Ping(ctx).Err(); err != nil {
		_ = q.Close()
		return nil, err
	}
	return q, nil
}

func (q *redisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.pop.BLPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrQueueEmpty
		}
		return "", err
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return "", ErrQueueEmpty
	}
	return res[1], nil
}

func (q *redisQueue) Len(ctx context.Context) (int64, error) {
	return q.inspect.LLen(ctx, q.name).Result()
}

func (q *redisQueue) Ping(ctx context.Context) error {
	return q.pop.Ping(ctx).Err()
}

func (q *redisQueue) Close() error {
	errPop := q.pop.Close()
	errInspect := q.inspect.Close()
	if errPop != nil {
		return errPop
	}
	return errInspect
}
