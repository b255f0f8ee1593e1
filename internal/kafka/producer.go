package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TopicOrderConfirmed = "order.confirmed"
	TopicOrderFailed    = "order.failed"
)

// OrderConfirmedEvent is published once an order has committed its inventory.
type OrderConfirmedEvent struct {
	EventID          string             `json:"event_id"`
	OccurredAt       time.Time          `json:"occurred_at"`
	OrderID          int64              `json:"order_id"`
	CustomerUsername string             `json:"customer_username"`
	Status           domain.OrderStatus `json:"status"`
	TotalPrice       string             `json:"total_price"`
	Items            []EventItem        `json:"items"`
}

type EventItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// OrderFailedEvent is published when an order could not commit its inventory.
type OrderFailedEvent struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	OrderID    int64     `json:"order_id"`
	Reason     string    `json:"reason"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order lifecycle events to Kafka, one writer per topic.
type Producer struct {
	writers map[string]messageWriter
	metrics *Metrics
	now     func() time.Time
}

// NewProducer creates writers for every order topic on the given brokers.
func NewProducer(brokers []string, metrics *Metrics) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	writers := make(map[string]messageWriter, 2)
	for _, topic := range []string{TopicOrderConfirmed, TopicOrderFailed} {
		writers[topic] = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		}
	}

	return newProducer(writers, metrics), nil
}

func newProducer(writers map[string]messageWriter, metrics *Metrics) *Producer {
	return &Producer{writers: writers, metrics: metrics, now: time.Now}
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (p *Producer) PublishOrderConfirmed(ctx context.Context, order domain.Order) error {
	event := OrderConfirmedEvent{
		EventID:          uuid.NewString(),
		OccurredAt:       p.now().UTC(),
		OrderID:          order.ID,
		CustomerUsername: order.CustomerUsername,
		Status:           order.Status,
		TotalPrice:       order.TotalPrice.StringFixed(2),
		Items:            make([]EventItem, len(order.Items)),
	}
	for i, item := range order.Items {
		event.Items[i] = EventItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		}
	}
	return p.publish(ctx, TopicOrderConfirmed, order.ID, event)
}

func (p *Producer) PublishOrderFailed(ctx context.Context, orderID int64, reason string) error {
	event := OrderFailedEvent{
		EventID:    uuid.NewString(),
		OccurredAt: p.now().UTC(),
		OrderID:    orderID,
		Reason:     reason,
	}
	return p.publish(ctx, TopicOrderFailed, orderID, event)
}

func (p *Producer) publish(ctx context.Context, topic string, orderID int64, payload any) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("kafka: no writer for topic %s", topic)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	start := time.Now()
	err = writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(orderID, 10)),
		Value: data,
		Time:  p.now().UTC(),
	})
	if p.metrics != nil {
		p.metrics.RecordPublish(ctx, topic, time.Since(start).Seconds(), err == nil)
	}
	if err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// Close flushes and closes every writer.
func (p *Producer) Close() error {
	var errs []error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s writer: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
