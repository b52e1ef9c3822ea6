package writeside

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
	"github.com/LerianStudio/ledgercore/internal/ports"
)

// ReadModelStage builds the ring.ReadModelFunc: classifies the batch's
// surviving (non-FAIL) events into per-account deposit/withdraw deltas
// (deltas of the same type for one account are summed, not overwritten;
// last-writer-wins is not used — see DESIGN.md), then issues the two
// batch SQL operations spec.md §4.5/§4.1 stage 3 describes. Firewalling
// FAIL events is the read-model stage's own responsibility here, mirrored
// again by the Projector for its independently-delivered batches.
func ReadModelStage(store ports.ReadModelStore) func(ctx context.Context, batch []domain.AccountEvent) {
	return func(ctx context.Context, batch []domain.AccountEvent) {
		logger := obs.FromContext(ctx)

		deposits := make(map[string]decimal.Decimal)
		withdraws := make(map[string]decimal.Decimal)

		for _, evt := range batch {
			if evt.IsFail() {
				continue
			}

			switch evt.Type {
			case domain.EventDeposit:
				deposits[evt.AccountID] = deposits[evt.AccountID].Add(evt.Amount)
			case domain.EventWithdraw:
				withdraws[evt.AccountID] = withdraws[evt.AccountID].Add(evt.Amount)
			}
		}

		for accountID, amount := range deposits {
			if err := store.UpsertDeposit(ctx, accountID, amount); err != nil {
				logger.Error("read-model deposit upsert failed, dropping batch-level update",
					"account_id", accountID, "error", err.Error())
			}
		}

		for accountID, amount := range withdraws {
			rows, err := store.UpdateWithdraw(ctx, accountID, amount)
			if err != nil {
				logger.Error("read-model withdraw update failed, dropping batch-level update",
					"account_id", accountID, "error", err.Error())

				continue
			}

			if rows == 0 {
				logger.Warn("read-model/write-model divergence: withdraw update affected zero rows",
					"account_id", accountID)
			}
		}
	}
}
