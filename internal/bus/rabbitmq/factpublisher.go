package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

// FactPublisher implements ports.FactPublisher by fanning out onto
// FactExchange, from which the persistent-subscription queues are bound.
type FactPublisher struct {
	conn *Connection
}

// NewFactPublisher binds a FactPublisher to conn.
func NewFactPublisher(conn *Connection) *FactPublisher {
	return &FactPublisher{conn: conn}
}

// PublishFact fans evt out to every bound persistent-subscription queue.
func (p *FactPublisher) PublishFact(ctx context.Context, evt domain.AccountEvent) error {
	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal fact: %w", err)
	}

	err = ch.PublishWithContext(ctx, FactExchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish fact: %w", err)
	}

	return nil
}
