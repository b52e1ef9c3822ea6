// Package rabbitmq implements the CommandBus ingress port every producer
// (CLI, Saga, Watcher) publishes commands through, and the fact fanout
// topology SPEC_FULL.md §2 names for genuinely external persistent
// subscribers. Adapted from the teacher's
// common/mrabbitmq.RabbitMQConnection hub, rewritten onto amqp091-go (the
// dependency actually declared in the teacher's go.mod, not the older
// streadway/amqp the hub file itself still imports — see DESIGN.md).
package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/LerianStudio/ledgercore/internal/obs"
)

// Exchange and queue names wired per spec.md §4.4's choreography: the
// CommandBus ingress queue every producer (CLI, Saga, Watcher) publishes
// to, and the fact fanout exchange genuinely external persistent
// subscribers bind queues to (SPEC_FULL.md §2 — the Saga and Projector do
// not consume from here, they read the log's own catch-up feed directly).
const (
	CommandQueue      = "ledger.commands"
	FactExchange      = "ledger.facts"
	NotificationQueue = "ledger.facts.notifications"
	BillingQueue      = "ledger.facts.billing"
)

// Connection is a hub around a single AMQP connection/channel pair.
type Connection struct {
	URL    string
	Logger obs.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
}

// Connect dials the broker, opens a channel, and declares the topology
// this module needs: the command queue and the fact fanout exchange with
// its two durable subscriber queues.
func (c *Connection) Connect(_ context.Context) error {
	c.Logger.Info("connecting to rabbitmq")

	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(32, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	c.conn = conn
	c.channel = ch

	c.Logger.Info("connected to rabbitmq")

	return nil
}

func declareTopology(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(CommandQueue, true, false, false, false, nil); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(FactExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	for _, q := range []string{NotificationQueue, BillingQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return err
		}

		if err := ch.QueueBind(q, "", FactExchange, false, nil); err != nil {
			return err
		}
	}

	return nil
}

// Channel returns the open channel, connecting lazily if needed.
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	if c.channel == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.channel, nil
}

// Close tears down the channel and connection.
func (c *Connection) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
