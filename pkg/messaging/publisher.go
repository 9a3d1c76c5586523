// Package messaging selects the event transport used by the outbox relay
// and the notification push path.
package messaging

import (
	"context"
	"fmt"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/kafka"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/pubsub"
)

// Publisher is satisfied by both the Pub/Sub client and the Kafka producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, data []byte, attrs map[string]string) error
	Close() error
}

// NewPublisher builds the transport named by cfg.Eventing.Transport.
func NewPublisher(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Publisher, error) {
	if cfg.Eventing.UsesKafka() {
		p, err := kafka.NewProducer(cfg.Kafka, logg)
		if err != nil {
			return nil, fmt.Errorf("kafka transport: %w", err)
		}
		return p, nil
	}
	c, err := pubsub.NewClient(ctx, cfg.GCP, cfg.Eventing, logg)
	if err != nil {
		return nil, fmt.Errorf("pubsub transport: %w", err)
	}
	return c, nil
}
