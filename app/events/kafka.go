package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/cloverpay/payment-core/app/factory"
)

// messageWriter is the slice of kafka.Writer the publisher needs; tests
// substitute an in-memory recorder.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer messageWriter
	logger logrus.FieldLogger
}

// NewKafkaPublisher builds a publisher over a single writer; the topic is set
// per message. RequireAll acks plus the writer's built-in retries give
// at-least-once delivery.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{
		writer: writer,
		logger: factory.NewModuleLogger("event-publisher"),
	}
}

func NewKafkaPublisherWithWriter(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		logger: factory.NewModuleLogger("event-publisher"),
	}
}

func (p *KafkaPublisher) PublishOrderPaid(ctx context.Context, event *OrderPaidEvent) error {
	return p.publish(ctx, TopicOrderPaid, event.OrderID, event)
}

func (p *KafkaPublisher) PublishPaymentFailed(ctx context.Context, event *PaymentFailedEvent) error {
	return p.publish(ctx, TopicPaymentFailed, event.OrderID, event)
}

func (p *KafkaPublisher) PublishRefundProcessed(ctx context.Context, event *RefundProcessedEvent) error {
	return p.publish(ctx, TopicRefundProcessed, event.OrderID, event)
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"topic": topic,
			"key":   key,
		}).Error("event_publish_failed")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic": topic,
		"key":   key,
	}).Debug("event_published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	if closer, ok := p.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

var _ Publisher = (*KafkaPublisher)(nil)
