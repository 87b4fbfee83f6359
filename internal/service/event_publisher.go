package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/pkg/kafka"
)

// EventPublisher publishes booking lifecycle events
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error
	PublishBookingCancelled(ctx context.Context, booking *domain.Booking) error
	PublishBookingCompleted(ctx context.Context, booking *domain.Booking) error
	PublishBookingRescheduled(ctx context.Context, booking *domain.Booking) error

	// PublishRefundRequired hands a charge without a booking to the refund worker
	PublishRefundRequired(ctx context.Context, req *domain.RefundRequest) error

	Close() error
}

// MessageProducer is satisfied by *kafka.Producer
type MessageProducer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
	Close()
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Topic       string
	RefundTopic string
	ServiceName string
}

// KafkaEventPublisher implements EventPublisher using Kafka
type KafkaEventPublisher struct {
	producer    MessageProducer
	topic       string
	refundTopic string
	serviceName string
}

// NewKafkaEventPublisher publishes through producer, which it closes on Close
func NewKafkaEventPublisher(producer MessageProducer, cfg *EventPublisherConfig) (*KafkaEventPublisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if cfg == nil {
		cfg = &EventPublisherConfig{}
	}

	p := &KafkaEventPublisher{
		producer:    producer,
		topic:       cfg.Topic,
		refundTopic: cfg.RefundTopic,
		serviceName: cfg.ServiceName,
	}
	if p.topic == "" {
		p.topic = "booking.events"
	}
	if p.refundTopic == "" {
		p.refundTopic = string(domain.BookingEventRefundRequired)
	}
	if p.serviceName == "" {
		p.serviceName = "hotel-api"
	}
	return p, nil
}

func (p *KafkaEventPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventConfirmed, booking)
}

func (p *KafkaEventPublisher) PublishBookingCancelled(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventCancelled, booking)
}

func (p *KafkaEventPublisher) PublishBookingCompleted(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventCompleted, booking)
}

func (p *KafkaEventPublisher) PublishBookingRescheduled(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventRescheduled, booking)
}

// PublishRefundRequired publishes req on the refund topic keyed by payment reference
func (p *KafkaEventPublisher) PublishRefundRequired(ctx context.Context, req *domain.RefundRequest) error {
	if req.EventID == "" {
		req.EventID = uuid.New().String()
	}
	return p.publish(ctx, p.refundTopic, req.Key(), domain.BookingEventRefundRequired, req.EventID, req)
}

// Close closes the underlying producer
func (p *KafkaEventPublisher) Close() error {
	p.producer.Close()
	return nil
}

func (p *KafkaEventPublisher) publishEvent(ctx context.Context, eventType domain.BookingEventType, booking *domain.Booking) error {
	eventID := uuid.New().String()
	event := domain.NewBookingEvent(eventType, booking, eventID)
	return p.publish(ctx, p.topic, event.Key(), eventType, eventID, event)
}

func (p *KafkaEventPublisher) publish(ctx context.Context, topic, key string, eventType domain.BookingEventType, eventID string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: map[string]string{
			"event_type":   string(eventType),
			"event_id":     eventID,
			"source":       p.serviceName,
			"content_type": "application/json",
		},
	}

	if err := p.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// NoOpEventPublisher drops every event. Used when Kafka is disabled.
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

func (p *NoOpEventPublisher) PublishBookingConfirmed(context.Context, *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) PublishBookingCancelled(context.Context, *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) PublishBookingCompleted(context.Context, *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) PublishBookingRescheduled(context.Context, *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) PublishRefundRequired(context.Context, *domain.RefundRequest) error {
	return nil
}

func (p *NoOpEventPublisher) Close() error {
	return nil
}
