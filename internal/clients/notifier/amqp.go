package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ConfirmationQueue is the durable queue read by the notification service.
const ConfirmationQueue = "order.confirmation"

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes confirmations to RabbitMQ. Channels are not safe for
// concurrent use, so publishes are serialized.
type AMQPNotifier struct {
	mu      sync.Mutex
	channel publisher
	closers []func() error
}

// DialAMQP connects to RabbitMQ and declares the confirmation queue.
func DialAMQP(url string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(ConfirmationQueue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", ConfirmationQueue, err)
	}

	return &AMQPNotifier{
		channel: channel,
		closers: []func() error{channel.Close, conn.Close},
	}, nil
}

func (n *AMQPNotifier) SendConfirmation(ctx context.Context, confirmation ports.Confirmation) error {
	msg, err := newConfirmationMessage(confirmation)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode confirmation: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.channel.PublishWithContext(ctx, "", ConfirmationQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    strconv.FormatInt(confirmation.OrderID, 10),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: publish confirmation for order %d: %w", domain.ErrRemote, confirmation.OrderID, err)
	}
	return nil
}

// Close closes the channel and then the connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var errs []error
	for _, closeFn := range n.closers {
		if err := closeFn(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	n.closers = nil
	return errors.Join(errs...)
}

var _ ports.Notifier = (*AMQPNotifier)(nil)
