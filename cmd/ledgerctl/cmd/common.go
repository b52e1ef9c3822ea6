package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	busrabbitmq "github.com/LerianStudio/ledgercore/internal/bus/rabbitmq"
	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
)

// publish dials a throwaway CommandBus connection, publishes evt and tears
// the connection back down. ledgerctl is a one-shot process per invocation,
// so there is no long-lived connection to reuse across commands.
func publish(ctx context.Context, rabbitmqURL string, evt domain.AccountEvent) error {
	logger, err := obs.NewZapLogger("warn")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	conn := &busrabbitmq.Connection{URL: rabbitmqURL, Logger: logger}
	defer conn.Close() //nolint:errcheck

	bus := busrabbitmq.NewCommandBus(conn)

	if err := bus.Publish(ctx, evt); err != nil {
		color.Red("rejected: %s", err)

		return err
	}

	color.Green("accepted  transaction_id=%s", evt.TransactionID)

	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", raw, err)
	}

	if amount.IsNegative() || amount.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("amount must be positive, got %s", raw)
	}

	return amount, nil
}

func newTransactionID() string {
	return uuid.NewString()
}
