package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/config"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the publisher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// NewEventRegistry wires every order and refund event to the orders topic.
func NewEventRegistry(cfg config.EventingConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.OrdersTopic)
	if topic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		{EventType: enums.EventOrderCreated, PayloadFactory: func() any { return &payloads.OrderCreatedEvent{} }},
		{EventType: enums.EventOrderPaid, PayloadFactory: func() any { return &payloads.OrderPaidEvent{} }},
		{EventType: enums.EventOrderPaymentFailed, PayloadFactory: func() any { return &payloads.OrderPaymentFailedEvent{} }},
		{EventType: enums.EventOrderPaymentRetry, PayloadFactory: func() any { return &payloads.OrderPaymentRetriedEvent{} }},
		{EventType: enums.EventOrderCancelled, PayloadFactory: func() any { return &payloads.OrderCancelledEvent{} }},
		{EventType: enums.EventOrderStatusChanged, PayloadFactory: func() any { return &payloads.OrderStatusChangedEvent{} }},
		{EventType: enums.EventOrderExpired, PayloadFactory: func() any { return &payloads.OrderExpiredEvent{} }},
	} {
		desc.AggregateType = enums.AggregateOrder
		desc.Topic = topic
		reg.entries[desc.EventType] = desc
	}
	for _, eventType := range []enums.OutboxEventType{enums.EventRefundCompleted, enums.EventRefundFailed} {
		reg.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregatePayment,
			Topic:          topic,
			PayloadFactory: func() any { return &payloads.RefundEvent{} },
		}
	}
	return reg, nil
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, nonRetryable("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NonRetryableError{Err: err}
	}
	if envelope.AggregateID != "" && envelope.AggregateID != event.AggregateID.String() {
		return nil, nonRetryable("envelope aggregate %s does not match row %s", envelope.AggregateID, event.AggregateID)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
