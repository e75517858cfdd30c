package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"booking-intake/backend/internal/booking/domain"
)

const writeTimeout = 5 * time.Second

// messageWriter is the part of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher hands bookings off to a Kafka topic.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher returns a publisher writing to topic. Call Close when shutting down.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("publisher: brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaPublisher(w, topic, logger), nil
}

func newKafkaPublisher(w messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

// Create publishes b keyed by its reference, so retries of one booking land on one partition.
func (p *KafkaPublisher) Create(ctx context.Context, b domain.Booking) error {
	payload, err := json.Marshal(NewBookingEvent(b))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(b.Reference),
		Value: payload,
		Time:  b.CreatedAt,
	})
	if err != nil {
		p.logger.Error("publisher: kafka write failed", zap.String("topic", p.topic), zap.String("reference", b.Reference), zap.Error(err))
		return err
	}
	p.logger.Info("publisher: booking published", zap.String("topic", p.topic), zap.String("reference", b.Reference))
	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
