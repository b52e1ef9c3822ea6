package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

// CommandBus implements ports.CommandBus by publishing onto the shared
// CommandQueue. Every producer — CLI, Saga, Watcher — publishes through
// this same type (spec.md §9 "no aspect-style rewriting").
type CommandBus struct {
	conn *Connection
}

// NewCommandBus binds a CommandBus to conn.
func NewCommandBus(conn *Connection) *CommandBus {
	return &CommandBus{conn: conn}
}

// Publish durably enqueues cmd onto CommandQueue. RabbitMQ delivers one
// queue's messages to its single consumer in enqueue order, which is what
// gives the ring's single ingress loop its total-order guarantee
// (spec.md §4.1).
func (b *CommandBus) Publish(ctx context.Context, cmd domain.AccountEvent) error {
	ch, err := b.conn.Channel(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	err = ch.PublishWithContext(ctx, "", CommandQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish command: %w", err)
	}

	return nil
}
