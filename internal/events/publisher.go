package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/lshigami/cefrexam/config"
	"github.com/rs/zerolog/log"
)

type Publisher interface {
	PublishAttemptCompleted(ctx context.Context, event AttemptCompletedEvent) error
	PublishUsageRecorded(ctx context.Context, event UsageRecordedEvent) error
	Close() error
}

type watermillPublisher struct {
	publisher message.Publisher
	topic     string
}

func NewPublisher(publisher message.Publisher, topic string) Publisher {
	return &watermillPublisher{publisher: publisher, topic: topic}
}

// NewMessagePublisher returns a Kafka publisher when brokers are configured and an
// in-process gochannel otherwise.
func NewMessagePublisher(cfg *config.Config) (message.Publisher, error) {
	logger := NewZerologAdapter()
	if len(cfg.Events.KafkaBrokers) == 0 {
		log.Warn().Msg("KAFKA_BROKERS is not set. Events stay in-process.")
		return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger), nil
	}
	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.Events.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}
	return publisher, nil
}

func (p *watermillPublisher) PublishAttemptCompleted(ctx context.Context, event AttemptCompletedEvent) error {
	return p.publish(ctx, AttemptCompleted, event)
}

func (p *watermillPublisher) PublishUsageRecorded(ctx context.Context, event UsageRecordedEvent) error {
	return p.publish(ctx, UsageRecorded, event)
}

func (p *watermillPublisher) publish(ctx context.Context, eventType EventType, data interface{}) error {
	envelope := Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	msg := message.NewMessage(envelope.ID, body)
	msg.Metadata.Set("event_type", string(eventType))
	msg.Metadata.Set("source", envelope.Source)
	msg.Metadata.Set("version", envelope.Version)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		log.Error().Err(err).Str("eventID", envelope.ID).Str("eventType", string(eventType)).Msg("Failed to publish event")
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	log.Debug().Str("eventID", envelope.ID).Str("eventType", string(eventType)).Msg("Event published")
	return nil
}

func (p *watermillPublisher) Close() error {
	return p.publisher.Close()
}

// zerologAdapter routes watermill's internal logging into the global zerolog logger.
type zerologAdapter struct {
	fields watermill.LogFields
}

func NewZerologAdapter() watermill.LoggerAdapter {
	return &zerologAdapter{}
}

func (a *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	log.Error().Err(err).Fields(map[string]interface{}(a.fields.Add(fields))).Msg(msg)
}

func (a *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	log.Info().Fields(map[string]interface{}(a.fields.Add(fields))).Msg(msg)
}

func (a *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	log.Debug().Fields(map[string]interface{}(a.fields.Add(fields))).Msg(msg)
}

func (a *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	log.Trace().Fields(map[string]interface{}(a.fields.Add(fields))).Msg(msg)
}

func (a *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zerologAdapter{fields: a.fields.Add(fields)}
}
