// Package events delivers document lifecycle events to downstream sinks
// (structured log, Kafka) after the registry commits a change.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docket/internal/document/models"
	"docket/pkg/requestcontext"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event publisher is closed")

// ErrCircuitOpen is returned when the sink has failed repeatedly and events
// are being dropped until the cooldown passes.
var ErrCircuitOpen = errors.New("event sink circuit is open")

// Sink receives committed lifecycle events.
type Sink interface {
	Write(ctx context.Context, events ...models.LifecycleEvent) error
}

// Metrics counts delivery outcomes and tracks the sink circuit.
type Metrics struct {
	Published    prometheus.Counter
	Dropped      *prometheus.CounterVec
	Failures     prometheus.Counter
	CircuitState prometheus.Gauge
	CircuitTrips prometheus.Counter
}

// NewMetrics registers publisher metrics with reg; nil uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "docket_lifecycle_events_published_total",
			Help: "Lifecycle events delivered to the sink",
		}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_lifecycle_events_dropped_total",
			Help: "Lifecycle events dropped before delivery, by reason (circuit_open, buffer_full)",
		}, []string{"reason"}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "docket_lifecycle_event_failures_total",
			Help: "Sink writes that returned an error",
		}),
		CircuitState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docket_lifecycle_event_sink_circuit_state",
			Help: "Sink circuit state: 0 closed, 1 open, 2 half-open",
		}),
		CircuitTrips: factory.NewCounter(prometheus.CounterOpts{
			Name: "docket_lifecycle_event_sink_circuit_trips_total",
			Help: "Times the sink circuit opened",
		}),
	}
}

func (m *Metrics) observeCircuit(s BreakerState) {
	m.CircuitState.Set(float64(s))
	if s == BreakerOpen {
		m.CircuitTrips.Inc()
	}
}

// Publisher forwards events to a Sink. By default delivery is synchronous;
// WithAsyncBuffer queues events for a background goroutine that Close
// drains.
type Publisher struct {
	sink    Sink
	breaker *CircuitBreaker
	logger  *slog.Logger
	metrics *Metrics
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan models.LifecycleEvent
	done   chan struct{}
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

// WithAsyncBuffer switches to asynchronous delivery with a queue of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan models.LifecycleEvent, n)
		}
	}
}

// WithWriteTimeout bounds each background sink write.
func WithWriteTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.timeout = d
	}
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:    sink,
		breaker: NewCircuitBreaker(5, time.Minute),
		logger:  slog.New(slog.DiscardHandler),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics != nil {
		p.breaker.onStateChange(p.metrics.observeCircuit)
	}
	if p.queue != nil {
		p.done = make(chan struct{})
		go p.run()
	}
	return p
}

// Publish delivers event, or enqueues it in async mode. A full queue drops
// the event rather than blocking the caller.
func (p *Publisher) Publish(ctx context.Context, event models.LifecycleEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if p.queue == nil {
		return p.deliver(ctx, event)
	}
	select {
	case p.queue <- event:
		return nil
	default:
		p.drop("buffer_full")
		p.logger.WarnContext(ctx, "lifecycle event dropped: buffer full",
			"document_id", event.DocumentID,
			"to", event.To,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.deliver(ctx, event); err != nil {
			p.logger.Warn("failed to deliver lifecycle event",
				"document_id", event.DocumentID,
				"to", event.To,
				"error", err,
			)
		}
		cancel()
	}
}

func (p *Publisher) deliver(ctx context.Context, event models.LifecycleEvent) error {
	if !p.breaker.Allow() {
		p.drop("circuit_open")
		return ErrCircuitOpen
	}
	if err := p.sink.Write(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.Failures.Inc()
		}
		if p.breaker.RecordFailure() {
			p.logger.ErrorContext(ctx, "lifecycle event sink circuit opened",
				"error", err,
				"document_id", event.DocumentID,
			)
		}
		return err
	}
	p.breaker.RecordSuccess()
	if p.metrics != nil {
		p.metrics.Published.Inc()
	}
	return nil
}

func (p *Publisher) drop(reason string) {
	if p.metrics != nil {
		p.metrics.Dropped.WithLabelValues(reason).Inc()
	}
}
