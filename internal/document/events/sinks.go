package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"docket/internal/document/models"
	"docket/pkg/requestcontext"
)

// DefaultTopic carries lifecycle events when no topic is configured.
const DefaultTopic = "docket.document.lifecycle"

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, events ...models.LifecycleEvent) error {
	for _, event := range events {
		s.logger.InfoContext(ctx, "document lifecycle event",
			"document_id", event.DocumentID,
			"path", event.Path,
			"type", event.Type,
			"from", event.From,
			"to", event.To,
			"reason", event.Reason,
			"actor", event.Actor,
			"at", event.At,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return nil
}

// KafkaSink produces events as JSON records keyed by document id, so every
// event for one document lands on the same partition in commit order.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects a producer to brokers.
func NewKafkaSink(brokers []string, topic string, opts ...kgo.Opt) (*KafkaSink, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerLinger(0),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

func (s *KafkaSink) Write(ctx context.Context, events ...models.LifecycleEvent) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return err
		}
		records = append(records, &kgo.Record{
			Topic: s.topic,
			Key:   []byte(event.DocumentID.String()),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "event", Value: []byte("document." + string(event.To))},
			},
		})
	}
	return s.client.ProduceSync(ctx, records...).FirstErr()
}

// Ping checks broker connectivity.
func (s *KafkaSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *KafkaSink) Close() {
	s.client.Close()
}

// MemorySink records events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []models.LifecycleEvent
	// Fail, when set, is returned by every Write.
	Fail error
}

func (s *MemorySink) Write(_ context.Context, events ...models.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *MemorySink) Events() []models.LifecycleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LifecycleEvent(nil), s.events...)
}
