package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/dispatch-backoffice/internal/queue"
)

// EventPublisher delivers activity events.  Callers publish only after the
// state change committed and never fail a request on a publish error.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ActivityEvent) error
}

// AMQPPublisher publishes each event on a fresh connection to a durable
// queue.  Messages are persistent.
type AMQPPublisher struct {
	URL         string
	Queue       string
	DialTimeout time.Duration
}

func NewAMQPPublisher(url, queueName string) *AMQPPublisher {
	if queueName == "" {
		queueName = queue.DefaultActivityQueue
	}
	return &AMQPPublisher{URL: url, Queue: queueName, DialTimeout: 2 * time.Second}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.ActivityEvent) error {
	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(p.DialTimeout)})
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", p.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	})
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.ActivityEvent) error { return nil }
