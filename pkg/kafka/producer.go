package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes events synchronously so the outbox only marks a row
// published after the broker acknowledged it.
type Producer struct {
	w        messageWriter
	clientID string
	now      func() time.Time
}

func NewProducer(cfg config.KafkaConfig, logg *logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	if logg != nil {
		logg.Info(logg.WithField(context.Background(), "brokers", cfg.Brokers), "kafka producer initialized")
	}
	return &Producer{w: w, clientID: cfg.ClientID, now: time.Now}, nil
}

// Publish writes one message to topic. The key selects the partition so
// events for the same aggregate stay ordered.
func (p *Producer) Publish(ctx context.Context, topic, key string, data []byte, attrs map[string]string) error {
	if p == nil || p.w == nil {
		return errors.New("kafka producer not initialized")
	}
	headers := make([]kafka.Header, 0, len(attrs)+1)
	for k, v := range attrs {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if p.clientID != "" {
		headers = append(headers, kafka.Header{Key: "producer", Value: []byte(p.clientID)})
	}
	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   data,
		Time:    p.now().UTC(),
		Headers: headers,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}
