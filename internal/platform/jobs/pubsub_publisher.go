package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/clovemart/api/internal/services"
)

// PubSubOrderEventPublisher publishes order lifecycle events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues the event message on the configured topic.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}

	data, err := p.marshal(orderEventMessage{
		Type:        event.Type,
		OrderID:     event.OrderID,
		OrderNumber: event.OrderNumber,
		UserID:      event.UserID,
		Status:      string(event.Status),
		Total:       event.Total,
		Currency:    event.Currency,
		OccurredAt:  event.OccurredAt.UTC(),
		Metadata:    event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "status", string(event.Status))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

type orderEventMessage struct {
	Type        string         `json:"type"`
	OrderID     string         `json:"orderId"`
	OrderNumber string         `json:"orderNumber,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Status      string         `json:"status,omitempty"`
	Total       int64          `json:"total"`
	Currency    string         `json:"currency,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var _ services.OrderEventPublisher = (*PubSubOrderEventPublisher)(nil)
