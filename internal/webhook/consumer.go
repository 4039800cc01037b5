package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// State is the consumer lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Config carries the consumer tunables. Zero values pick the defaults
// from the queue contract.
type Config struct {
	PollInterval time.Duration // default 1s
	BlockTimeout time.Duration // default 2s
	DrainTimeout time.Duration // default 30s
	Clock        clockwork.Clock
}

// Health is the consumer's contribution to /healthz.
type Health struct {
	State    string `json:"state"`
	Degraded bool   `json:"degraded"`
	InFlight int64  `json:"in_flight"`
}

// Consumer runs the blocking pop loop: pop, parse, validate, dispatch.
// Handlers run in their own goroutines and are tracked in the in-flight
// set; Stop drains them for up to DrainTimeout.
//
// The in-flight set is unbounded. Handler latency is bounded by the
// downstream clients' own timeouts, which keeps growth bounded in
// practice; see the queue-depth and in-flight gauges before changing this.
type Consumer struct {
	id         string
	queue      Queue
	dispatcher *Dispatcher
	clock      clockwork.Clock

	pollInterval time.Duration
	blockTimeout time.Duration
	drainTimeout time.Duration

	mu       sync.Mutex
	state    State
	degraded bool
	cancel   context.CancelFunc
	loopDone chan struct{}

	inflight  sync.WaitGroup
	inflightN atomic.Int64

	depth       prometheus.Gauge
	handled     prometheus.Counter
	dropped     prometheus.Counter
	handlerErrs prometheus.Counter
}

// NewConsumer builds a consumer over queue and dispatcher. reg may be nil
// to skip metric registration (tests).
func NewConsumer(queue Queue, dispatcher *Dispatcher, cfg Config, reg prometheus.Registerer) *Consumer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 2 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	c := &Consumer{
		id:           uuid.NewString(),
		queue:        queue,
		dispatcher:   dispatcher,
		clock:        cfg.Clock,
		pollInterval: cfg.PollInterval,
		blockTimeout: cfg.BlockTimeout,
		drainTimeout: cfg.DrainTimeout,
		state:        StateIdle,
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ticketbridge", Subsystem: "webhook", Name: "queue_depth",
			Help: "Events waiting in the webhook queue.",
		}),
		handled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge", Subsystem: "webhook", Name: "events_handled_total",
			Help: "Events dispatched to a handler.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge", Subsystem: "webhook", Name: "events_dropped_total",
			Help: "Events dropped as malformed or invalid.",
		}),
		handlerErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge", Subsystem: "webhook", Name: "handler_errors_total",
			Help: "Handler invocations that returned an error.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.depth, c.handled, c.dropped, c.handlerErrs)
	}
	return c
}

// Start connects to the queue and launches the poll loop. Starting a
// running consumer is an error.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRunning || c.state == StateConnecting || c.state == StateDraining {
		c.mu.Unlock()
		return fmt.Errorf("webhook: consumer already %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.queue.Ping(ctx); err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return fmt.Errorf("webhook: queue ping: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.state = StateRunning
	c.cancel = cancel
	c.loopDone = done
	c.mu.Unlock()

	log.Info().Str("consumer_id", c.id).Dur("poll_interval", c.pollInterval).Msg("webhook consumer started")
	go c.run(loopCtx, done)
	return nil
}

func (c *Consumer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Connection-loss backoff: the consumer stays Running but degraded
	// while the queue backend is away.
	reconnect := backoff.NewExponentialBackOff()
	reconnect.InitialInterval = 500 * time.Millisecond
	reconnect.MaxInterval = 3 * time.Second
	reconnect.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}

		raw, err := c.queue.Pop(ctx, c.blockTimeout)
		switch {
		case err == nil:
			c.setDegraded(false)
			reconnect.Reset()
			c.handleRaw(ctx, raw)
		case errors.Is(err, ErrQueueEmpty):
			c.setDegraded(false)
			reconnect.Reset()
		case errors.Is(err, context.Canceled) || ctx.Err() != nil:
			return
		default:
			c.setDegraded(true)
			wait := reconnect.NextBackOff()
			log.Warn().Err(err).Dur("retry_in", wait).Msg("queue pop failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-c.clock.After(wait):
			}
		}

		if n, err := c.queue.Len(ctx); err == nil {
			c.depth.Set(float64(n))
		}

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.pollInterval):
		}
	}
}

// handleRaw parses and validates one queue item, then hands it to the
// dispatcher in a tracked goroutine. Malformed items are logged and
// dropped; the producer side owns retries.
func (c *Consumer) handleRaw(ctx context.Context, raw string) {
	ev, err := ParseEvent([]byte(raw))
	if err != nil {
		c.dropped.Inc()
		log.Warn().Err(err).Msg("dropping malformed webhook event")
		return
	}

	// Handlers must survive Stop's cancellation of the poll loop:
	// at-least-once only holds if started handlers are never cut short.
	handlerCtx := context.WithoutCancel(ctx)

	c.inflight.Add(1)
	c.inflightN.Add(1)
	go func() {
		defer func() {
			c.inflightN.Add(-1)
			c.inflight.Done()
		}()
		c.handled.Inc()
		if err := c.dispatcher.Dispatch(handlerCtx, ev); err != nil {
			c.handlerErrs.Inc()
			evt := log.Error()
			var te TransientError
			if errors.As(err, &te) && te.Transient() {
				evt = log.Warn()
			}
			evt.Err(err).
				Str("type", string(ev.Type)).
				Str("conversation_id", ev.Data.ConversationRef()).
				Msg("webhook handler failed")
		}
	}()
}

// Stop drains the consumer: no new polls are scheduled, the current pop is
// released, and in-flight handlers get up to DrainTimeout to finish.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning {
		state := c.state
		c.mu.Unlock()
		if state == StateStopped || state == StateIdle {
			return nil
		}
		return fmt.Errorf("webhook: cannot stop consumer in state %s", state)
	}
	c.state = StateDraining
	cancel := c.cancel
	done := c.loopDone
	c.mu.Unlock()

	log.Info().Str("consumer_id", c.id).Msg("webhook consumer draining")
	cancel()
	<-done

	drained := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		log.Info().Msg("webhook consumer stopped cleanly")
	case <-c.clock.After(c.drainTimeout):
		log.Error().Int64("in_flight", c.inflightN.Load()).
			Msg("drain timeout reached, handlers leaked")
	case <-ctx.Done():
		log.Error().Int64("in_flight", c.inflightN.Load()).
			Msg("stop context cancelled before drain completed")
	}

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()
	return nil
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Health reports the consumer's state for the ops surface.
func (c *Consumer) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Health{
		State:    c.state.String(),
		Degraded: c.degraded,
		InFlight: c.inflightN.Load(),
	}
}

func (c *Consumer) setDegraded(v bool) {
	c.mu.Lock()
	if c.degraded != v {
		c.degraded = v
		if v {
			log.Warn().Msg("webhook consumer degraded: queue backend unreachable")
		} else {
			log.Info().Msg("webhook consumer recovered")
		}
	}
	c.mu.Unlock()
}
