// Command ledger-notifier is a stand-in for the "genuinely external"
// persistent subscribers SPEC_FULL.md §2 describes hanging off the fact
// fanout exchange — e.g. a downstream billing system. It never touches
// Postgres or Mongo: it only proves out the ack / nack(retry) / nack(park)
// contract spec.md §6 requires, grounded on the teacher's standalone
// components/consumer process (its own OS process, its own cmd/app/main.go,
// consuming one RabbitMQ queue end to end).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	busrabbitmq "github.com/LerianStudio/ledgercore/internal/bus/rabbitmq"
	"github.com/LerianStudio/ledgercore/internal/config"
	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
	"github.com/LerianStudio/ledgercore/internal/platform"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ledger-notifier:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := obs.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := obs.ContextWithLogger(context.Background(), logger)

	redisOpts, err := redis.ParseURL(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("parse redis addr: %w", err)
	}

	redisClient := redis.NewClient(redisOpts)

	rmqConn := &busrabbitmq.Connection{URL: cfg.RabbitMQURL, Logger: logger}

	sub := busrabbitmq.NewSubscription(
		rmqConn,
		redisClient,
		busrabbitmq.NotificationQueue,
		cfg.SubscriptionMaxRetries,
		cfg.SubscriptionAckTimeout,
		logger,
		notify(logger),
	)

	launcher := platform.NewLauncher(logger)
	launcher.Add("notification-subscriber", sub)

	return launcher.Run(ctx)
}

// notify is the sample handler: a real billing consumer would charge a
// ledger event against an external system here. FAIL events are not
// filtered out — external subscribers see the full fact stream and decide
// for themselves whether a FAIL is interesting.
func notify(logger obs.Logger) busrabbitmq.Handler {
	return func(_ context.Context, evt domain.AccountEvent) error {
		logger.Info("fact delivered to notification subscriber",
			"transaction_id", evt.TransactionID,
			"account_id", evt.AccountID,
			"type", string(evt.Type),
			"description", evt.Description,
		)

		return nil
	}
}
