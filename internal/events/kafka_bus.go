package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBusOptions configures the Kafka topic and consumer group.
type KafkaBusOptions struct {
	Brokers []string
	Topic   string
	GroupID string
}

// kafkaBus publishes to one topic and consumes it through a consumer group.
// Offsets are committed after handling.
type kafkaBus struct {
	*handlerSet
	writer kafkaWriter
	reader kafkaReader
	closed atomic.Bool
	logger *zap.Logger
}

// NewKafkaBus builds a writer and a group reader for the topic.
func NewKafkaBus(opts KafkaBusOptions, logger *zap.Logger) Bus {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(opts.Brokers...),
		Topic:    opts.Topic,
		Balancer: &kafka.Hash{},
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: opts.Brokers,
		Topic:   opts.Topic,
		GroupID: opts.GroupID,
	})
	return newKafkaBus(writer, reader, logger)
}

func newKafkaBus(writer kafkaWriter, reader kafkaReader, logger *zap.Logger) *kafkaBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &kafkaBus{handlerSet: newHandlerSet(), writer: writer, reader: reader, logger: logger}
}

func (b *kafkaBus) Publish(ctx context.Context, event Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", event.Type, err)
	}
	return nil
}

func (b *kafkaBus) Run(ctx context.Context) error {
	for {
		msg, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || b.closed.Load() || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			b.logger.Error("dropping malformed event", zap.Int64("offset", msg.Offset), zap.Error(err))
		} else {
			logDispatch(b.logger, event, b.dispatch(ctx, event))
		}

		if err := b.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (b *kafkaBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(b.writer.Close(), b.reader.Close())
}
