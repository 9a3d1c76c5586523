package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

// Row outcomes, also the metric label values.
const (
	outcomePublished = "published"
	outcomeFailed    = "failed"
	outcomeTerminal  = "terminal"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, maxAttempts int, cause error) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// transport is the Pub/Sub client or the Kafka producer.
type transport interface {
	Publish(ctx context.Context, topic, key string, data []byte, attrs map[string]string) error
}

type pinger interface {
	Ping(context.Context) error
}

type ServiceParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	Transport  transport
	Repository outboxRepository
	Registry   registryResolver
	Metrics    *metrics.EngineMetrics
}

// Service relays committed outbox rows to the event transport, oldest first.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	transport    transport
	registry     registryResolver
	metrics      *metrics.EngineMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Transport == nil:
		return nil, errors.New("event transport is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		transport:    params.Transport,
		registry:     params.Registry,
		metrics:      params.Metrics,
		batchSize:    params.Outbox.BatchSize,
		maxAttempts:  params.Outbox.MaxAttempts,
		pollInterval: time.Duration(params.Outbox.PollIntervalMS) * time.Millisecond,
		now:          time.Now,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPoll
	}
	return s, nil
}

func (s *Service) checkDependencies(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if p, ok := s.transport.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("transport ping: %w", err)
		}
	}
	return nil
}

// Run drains full batches back to back, sleeps a poll interval when idle and
// backs off exponentially while batches keep failing.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}

	delay := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			delay = nextBackoff(delay, s.pollInterval, maxBackoff)
		case processed:
			delay = s.pollInterval
			continue
		default:
			delay = s.pollInterval
		}

		if err := sleep(ctx, withJitter(delay)); err != nil {
			return err
		}
	}
}

// processBatch relays one claimed batch inside a single transaction. A
// publish failure only marks its own row; the rest of the batch keeps going.
// It reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.relay(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// relay publishes one row and records its outcome. Only bookkeeping failures
// are returned.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	logCtx := s.logg.WithFields(ctx, rowFields(event))

	resolved, err := s.registry.Resolve(event)
	if err == nil {
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"event_id": resolved.Envelope.EventID,
			"topic":    resolved.Descriptor.Topic,
		})
		err = s.publish(ctx, event, resolved)
	}

	switch outcome, cause := s.classify(event, err); outcome {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID, s.now().UTC()); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.Outbox(outcomePublished)
		s.logg.Debug(logCtx, "outbox event published")
	case outcomeTerminal:
		s.logg.Warn(s.logg.WithField(logCtx, "error", cause.Error()), "outbox event parked")
		if err := s.repo.MarkTerminalTx(tx, event.ID, s.maxAttempts, cause); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.metrics.Outbox(outcomeTerminal)
	default:
		s.logg.Warn(s.logg.WithField(logCtx, "error", cause.Error()), "outbox publish failed, will retry")
		if err := s.repo.MarkFailedTx(tx, event.ID, cause); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		s.metrics.Outbox(outcomeFailed)
	}
	return nil
}

// classify maps a relay error to a row outcome. Bad rows and rows out of
// attempts are parked; everything else is retried on a later batch.
func (s *Service) classify(event models.OutboxEvent, err error) (string, error) {
	if err == nil {
		return outcomePublished, nil
	}
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return outcomeTerminal, err
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return outcomeTerminal, fmt.Errorf("max publish attempts reached: %w", err)
	}
	return outcomeFailed, err
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	if topic == "" {
		return registry.NonRetryableError{Err: fmt.Errorf("no topic for %s", event.EventType)}
	}
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	// Keyed by aggregate so one order's events stay in order on Kafka.
	return s.transport.Publish(ctx, topic, event.AggregateID.String(), event.Payload, attrs)
}

func rowFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt":        event.AttemptCount + 1,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextBackoff doubles current up to max, starting from base.
func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, max)
}

func withJitter(d time.Duration) time.Duration {
	return d + rand.N(jitterWindow)
}
