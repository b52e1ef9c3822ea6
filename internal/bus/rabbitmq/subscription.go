package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
)

const parkedSuffix = ".parked"

// Handler processes one durably-delivered fact. A non-nil error counts as
// a failed delivery attempt against the message's retry budget.
type Handler func(ctx context.Context, evt domain.AccountEvent) error

// Subscription is a named, durable, competing-consumer subscriber over
// the fact fanout exchange, implementing spec.md §6's
// "ack / nack(retry) / nack(park), max 10 retries, 10s ack timeout"
// contract. The retry counter lives in Redis, keyed by transaction id +
// sequence, because AMQP redelivery alone carries no count a consumer can
// read back.
type Subscription struct {
	conn       *Connection
	redis      *redis.Client
	queue      string
	maxRetries int
	ackTimeout time.Duration
	logger     obs.Logger
	handler    Handler
}

// NewSubscription binds a Subscription to queue, which must already be
// bound to FactExchange (see declareTopology for the built-in example
// subscriber queues; other external subscribers declare and bind their own
// queue with the same name passed here).
func NewSubscription(conn *Connection, redisClient *redis.Client, queue string, maxRetries int, ackTimeout time.Duration, logger obs.Logger, handler Handler) *Subscription {
	return &Subscription{
		conn:       conn,
		redis:      redisClient,
		queue:      queue,
		maxRetries: maxRetries,
		ackTimeout: ackTimeout,
		logger:     logger,
		handler:    handler,
	}
}

// Run implements platform.Subsystem.
func (s *Subscription) Run(ctx context.Context) error {
	ch, err := s.conn.Channel(ctx)
	if err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(s.queue+parkedSuffix, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare parked queue: %w", err)
	}

	deliveries, err := ch.Consume(s.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", s.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("subscription %s: delivery channel closed", s.queue)
			}

			s.handle(ctx, ch, d)
		}
	}
}

func (s *Subscription) handle(ctx context.Context, ch *amqp.Channel, d amqp.Delivery) {
	var evt domain.AccountEvent

	if err := json.Unmarshal(d.Body, &evt); err != nil {
		s.logger.Error("subscription dropping unparseable fact", "queue", s.queue, "error", err.Error())
		_ = d.Nack(false, false)

		return
	}

	retryKey := fmt.Sprintf("ledger:subscription:%s:retry:%s:%d", s.queue, evt.TransactionID, evt.Sequence)

	attemptCtx, cancel := context.WithTimeout(ctx, s.ackTimeout)
	err := s.handler(attemptCtx, evt)
	cancel()

	if err == nil {
		_ = s.redis.Del(ctx, retryKey).Err()
		_ = d.Ack(false)

		return
	}

	count, incrErr := s.redis.Incr(ctx, retryKey).Result()
	if incrErr != nil {
		s.logger.Error("retry counter unavailable, nacking for requeue",
			"queue", s.queue, "error", incrErr.Error())
		_ = d.Nack(false, true)

		return
	}

	s.redis.Expire(ctx, retryKey, 24*time.Hour)

	if int(count) >= s.maxRetries {
		s.logger.Warn("subscription exhausted retries, parking message",
			"queue", s.queue, "transaction_id", evt.TransactionID, "retries", count)

		publishErr := ch.PublishWithContext(ctx, "", s.queue+parkedSuffix, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         d.Body,
		})
		if publishErr != nil {
			s.logger.Error("failed to park message, requeueing instead",
				"queue", s.queue, "error", publishErr.Error())
			_ = d.Nack(false, true)

			return
		}

		_ = s.redis.Del(ctx, retryKey).Err()
		_ = d.Ack(false)

		return
	}

	s.logger.Warn("subscription handler failed, retrying",
		"queue", s.queue, "transaction_id", evt.TransactionID, "attempt", count, "error", err.Error())
	_ = d.Nack(false, true)
}
