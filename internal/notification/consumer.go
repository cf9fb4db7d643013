package notification

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/FJFJ0400/capture-ai/internal/events"
)

// MessageReader - часть kafka.Reader, нужная потребителю.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает события снимков из Kafka
type Consumer interface {
	Start(ctx context.Context) error
	Close() error
}

type kafkaConsumer struct {
	reader  MessageReader
	handler EventHandler
	log     zerolog.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, handler EventHandler, logger zerolog.Logger) Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewConsumer(reader, handler, logger.With().Str("topic", topic).Str("group", groupID).Logger())
}

func NewConsumer(reader MessageReader, handler EventHandler, logger zerolog.Logger) Consumer {
	return &kafkaConsumer{
		reader:  reader,
		handler: handler,
		log:     logger.With().Str("component", "kafka_consumer").Logger(),
	}
}

// Start читает сообщения в цикле до отмены контекста. Сообщение фиксируется
// после обработки, в том числе неразборчивое или с ошибкой обработчика.
func (c *kafkaConsumer) Start(ctx context.Context) error {
	c.log.Info().Msg("kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Msg("kafka consumer stopped")
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.log.Error().Err(err).Msg("read message")
			continue
		}

		event, err := events.Decode(msg)
		if err != nil {
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("unmarshal capture event")
		} else if err := c.handler.HandleEvent(ctx, event); err != nil {
			c.log.Error().Err(err).Str("capture_id", event.CaptureID).Msg("handle event")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("commit message")
		}
	}
}

func (c *kafkaConsumer) Close() error {
	return c.reader.Close()
}
