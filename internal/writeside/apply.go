// Package writeside wires the ring pipeline's three stage functions
// (apply, journal, read-model) to the Aggregate Loader, the EventLog and
// the ReadModelStore, and owns the synchronous append-to-log-per-batch
// flow spec.md §4.1 describes. It is the composition point between the
// generic internal/ring mechanism and the ledger's domain rules.
package writeside

import (
	"context"

	"github.com/LerianStudio/ledgercore/internal/aggregate"
	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
)

// ApplyStage builds the ring.ApplyFunc: loads the target account, evaluates
// the domain rule, and folds the (possibly FAIL-rewritten) event into the
// cached aggregate. For TRANSFER_DEPOSIT events it evaluates against the
// target's own aggregate (the account the deposit lands in), matching
// spec.md §4.1's "target-must-exist rule" wording literally — the event's
// AccountID already names the account receiving the deposit.
func ApplyStage(loader *aggregate.Loader) func(ctx context.Context, evt domain.AccountEvent) domain.AccountEvent {
	return func(ctx context.Context, evt domain.AccountEvent) domain.AccountEvent {
		logger := obs.FromContext(ctx)

		acc := loader.Load(ctx, evt.AccountID)

		result, err := acc.EvaluateRule(evt)
		if err != nil {
			logger.Warn("already-processed command, rewriting to FAIL",
				"account_id", evt.AccountID, "transaction_id", evt.TransactionID)
			result.Type = domain.EventFail
		}

		acc.Apply(result)

		if result.IsFail() {
			logger.Info("business rule violation, event rewritten to FAIL",
				"account_id", evt.AccountID, "transaction_id", evt.TransactionID, "description", evt.Description)
		}

		return result
	}
}
