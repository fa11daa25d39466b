package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher ships a batch of events.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}

// KafkaPublisher writes events as JSON messages to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a synchronous batching writer; batching across
// requests already happens in Recorder.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				logger.Debug(fmt.Sprintf(msg, args...))
			}),
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				logger.Warn(fmt.Sprintf(msg, args...))
			}),
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events []Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("audit: encode event %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   e.partitionKey(),
			Value: value,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(e.Type)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("audit: write messages: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher writes events to the logger. It is used when no Kafka brokers
// are configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events []Event) error {
	for _, e := range events {
		p.logger.Info("audit event",
			zap.String("id", e.ID),
			zap.String("type", e.Type),
			zap.String("caller_type", e.CallerType),
			zap.String("agency_id", e.AgencyID),
			zap.String("final_price", e.FinalPrice.String()),
			zap.Strings("rule_ids", e.RuleIDs))
	}
	return nil
}
