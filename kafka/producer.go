package kafka

import (
	"context"
	"encoding/json"
	"time"

	"cart-session-service/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CheckoutCompletedEvent is the broker payload published after a session
// checks out.
type CheckoutCompletedEvent struct {
	Event     string            `json:"event"` // "checkout.completed"
	SessionID string            `json:"session_id"`
	OrderID   string            `json:"order_id"`
	Items     []models.CartItem `json:"items"`
	Total     int64             `json:"total_minor_units"`
	Timestamp time.Time         `json:"timestamp"`
}

// Producer publishes checkout events. A nil Producer is a valid no-op, so
// the service runs with kafka disabled.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}
}

// PublishCheckoutCompleted sends the event keyed by session id. Publishing
// is best effort; failures are logged and never fail the checkout.
func (p *Producer) PublishCheckoutCompleted(ctx context.Context, order models.Order) {
	if p == nil {
		return
	}
	event := CheckoutCompletedEvent{
		Event:     "checkout.completed",
		SessionID: order.Cart.SessionID,
		OrderID:   order.OrderID,
		Items:     order.Cart.Items,
		Total:     order.Cart.Total,
		Timestamp: order.CompletedAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal checkout event", zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(order.Cart.SessionID),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish checkout event",
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
	}
}

func (p *Producer) Close() {
	if p == nil {
		return
	}
	_ = p.writer.Close()
}
