package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// CaptureEvent - событие смены статуса снимка для Kafka.
type CaptureEvent struct {
	CaptureID     string    `json:"captureId"`
	Status        string    `json:"status"`
	Category      string    `json:"category,omitempty"`
	FailureReason string    `json:"failureReason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// IsFailure - событие о неуспешной обработке.
func (e CaptureEvent) IsFailure() bool {
	return e.Status == "FAILED"
}

type Producer interface {
	Publish(ctx context.Context, event CaptureEvent) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
}

// NewProducer возвращает Kafka producer; без брокеров события отбрасываются.
func NewProducer(brokers []string, topic string) Producer {
	if len(brokers) == 0 {
		return nopProducer{}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &kafkaProducer{writer: writer}
}

func (p *kafkaProducer) Publish(ctx context.Context, event CaptureEvent) error {
	msg, err := Encode(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

// Encode упаковывает событие в сообщение; ключ - ID снимка.
func Encode(event CaptureEvent) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.CaptureID),
		Value: payload,
		Time:  event.Timestamp,
	}, nil
}

// Decode разбирает значение сообщения.
func Decode(msg kafka.Message) (CaptureEvent, error) {
	var event CaptureEvent
	err := json.Unmarshal(msg.Value, &event)
	return event, err
}

type nopProducer struct{}

func (nopProducer) Publish(context.Context, CaptureEvent) error { return nil }

func (nopProducer) Close() error { return nil }
