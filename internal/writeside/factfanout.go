package writeside

import (
	"context"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
	"github.com/LerianStudio/ledgercore/internal/ports"
)

// WithFactFanout wraps a JournalFunc so that every event durably appended
// by next is also published to the persistent-subscription fanout
// (spec.md §2's "journal stage publishes every durably-appended fact").
// A publish failure is logged and swallowed: the fanout is fire-and-forget
// relative to the journal's own durability guarantee, never a reason to
// halt the pipeline.
func WithFactFanout(next func(ctx context.Context, batch []domain.AccountEvent) error, pub ports.FactPublisher) func(ctx context.Context, batch []domain.AccountEvent) error {
	return func(ctx context.Context, batch []domain.AccountEvent) error {
		if err := next(ctx, batch); err != nil {
			return err
		}

		logger := obs.FromContext(ctx)

		for _, evt := range batch {
			if err := pub.PublishFact(ctx, evt); err != nil {
				logger.Warn("fact fanout publish failed",
					"account_id", evt.AccountID, "transaction_id", evt.TransactionID, "error", err.Error())
			}
		}

		return nil
	}
}
