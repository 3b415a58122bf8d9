package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// StartActivityConsumer connects to the broker, declares the durable
// activity queue and records every event through log.  It reconnects with
// exponential backoff (capped at 30s) until ctx is cancelled.  Malformed
// messages are rejected without requeue.
func StartActivityConsumer(ctx context.Context, url, queueName string, log *zap.Logger) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("activity consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, queueName, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("activity consumer: loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("activity consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := HandleMessage(d.Body, log); err != nil {
				log.Error("activity consumer: bad message", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one activity event and writes it as a structured
// log line.
func HandleMessage(body []byte, log *zap.Logger) error {
	var ev ActivityEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}

	fields := []zap.Field{
		zap.String("type", ev.Type),
		zap.Uint64("tenant_id", ev.TenantID),
		zap.Uint64("actor_id", ev.ActorID),
		zap.Time("occurred_at", ev.OccurredAt),
	}
	if ev.TenantName != "" {
		fields = append(fields, zap.String("tenant", ev.TenantName))
	}
	if ev.FleetUnitID != 0 {
		fields = append(fields, zap.Uint64("fleet_unit_id", ev.FleetUnitID))
	}
	if ev.LoadID != 0 {
		fields = append(fields, zap.Uint64("load_id", ev.LoadID))
	}
	if ev.FromStatus != "" || ev.ToStatus != "" {
		fields = append(fields, zap.String("from", ev.FromStatus), zap.String("to", ev.ToStatus))
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}
	log.Info("activity", fields...)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
