package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
)

// Publisher is the narrow slice of *ring.Pipeline the ingress loop needs —
// declared here rather than imported from package ring to avoid a
// rabbitmq→ring→rabbitmq import cycle (ring never needs to know its
// ingress is RabbitMQ-backed).
type Publisher interface {
	Publish(ctx context.Context, events []domain.AccountEvent) ([]domain.AccountEvent, error)
}

// Ingress is the single CommandQueue consumer that feeds the ring
// pipeline. It is the one caller spec.md §4.1 requires for the
// single-writer invariant: one RabbitMQ consumer, one goroutine, one
// Pipeline.Publish caller.
type Ingress struct {
	conn     *Connection
	pipeline Publisher
	logger   obs.Logger
}

// NewIngress binds an Ingress to conn and pipeline.
func NewIngress(conn *Connection, pipeline Publisher, logger obs.Logger) *Ingress {
	return &Ingress{conn: conn, pipeline: pipeline, logger: logger}
}

// Run implements platform.Subsystem: it consumes CommandQueue one message
// at a time, publishes each command onto the ring as a single-event
// batch, and acks only after Publish returns — a redelivery on crash
// re-enters the ring rather than being silently lost.
func (i *Ingress) Run(ctx context.Context) error {
	ch, err := i.conn.Channel(ctx)
	if err != nil {
		return err
	}

	deliveries, err := ch.Consume(CommandQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume command queue: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("command queue delivery channel closed")
			}

			i.handle(ctx, d)
		}
	}
}

func (i *Ingress) handle(ctx context.Context, d amqp.Delivery) {
	var cmd domain.AccountEvent

	if err := json.Unmarshal(d.Body, &cmd); err != nil {
		i.logger.Error("dropping unparseable command", "error", err.Error())
		_ = d.Nack(false, false)

		return
	}

	if _, err := i.pipeline.Publish(ctx, []domain.AccountEvent{cmd}); err != nil {
		i.logger.Error("ring publish failed, requeueing command",
			"account_id", cmd.AccountID, "transaction_id", cmd.TransactionID, "error", err.Error())
		_ = d.Nack(false, true)

		return
	}

	_ = d.Ack(false)
}
