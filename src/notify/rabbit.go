// Package notify hands group notifications to the dispatcher queue.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"group-registry/src/models"
)

// Channel is the part of an AMQP channel the dispatcher uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitDispatcher publishes each notification as a persistent JSON message
// on a durable queue.
type RabbitDispatcher struct {
	conn    *amqp.Connection
	channel Channel
	queue   string
}

// DialRabbit connects to url and declares queue.
func DialRabbit(url, queue string) (*RabbitDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	d, err := NewRabbitDispatcher(ch, queue)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	d.conn = conn
	return d, nil
}

// NewRabbitDispatcher declares queue on an open channel.
func NewRabbitDispatcher(ch Channel, queue string) (*RabbitDispatcher, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &RabbitDispatcher{channel: ch, queue: queue}, nil
}

// Enqueue publishes n and returns its id.
func (d *RabbitDispatcher) Enqueue(ctx context.Context, n models.Notification) (string, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("encode notification: %w", err)
	}
	err = d.channel.PublishWithContext(ctx, "", d.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Type:         string(n.Kind),
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return n.ID, nil
}

func (d *RabbitDispatcher) Close() error {
	if err := d.channel.Close(); err != nil {
		return err
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// LogDispatcher records notifications in the log instead of publishing
// them. It is used when no broker is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Enqueue(_ context.Context, n models.Notification) (string, error) {
	d.logger.Debug("notification not published",
		"notification_id", n.ID,
		"kind", n.Kind,
		"group_id", n.GroupID,
		"principal", n.Subject,
		"recipients", len(n.Recipients),
	)
	return n.ID, nil
}
