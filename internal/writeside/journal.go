package writeside

import (
	"context"
	"fmt"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/ports"
)

// JournalStage builds the ring.JournalFunc: groups the batch by account
// stream and appends each stream's slice synchronously, in order, waiting
// for durable acknowledgment. Any append error is wrapped as a
// domain.DurabilityError and returned, which the ring's journal consumer
// loop treats as fatal (spec.md §7).
func JournalStage(log ports.EventLog) func(ctx context.Context, batch []domain.AccountEvent) error {
	return func(ctx context.Context, batch []domain.AccountEvent) error {
		byStream := make(map[string][]domain.AccountEvent)

		var order []string

		for _, evt := range batch {
			if _, seen := byStream[evt.AccountID]; !seen {
				order = append(order, evt.AccountID)
			}

			byStream[evt.AccountID] = append(byStream[evt.AccountID], evt)
		}

		for _, accountID := range order {
			if _, err := log.AppendToStream(ctx, accountID, byStream[accountID]); err != nil {
				return &domain.DurabilityError{Stream: fmt.Sprintf("Account-%s", accountID), Err: err}
			}
		}

		return nil
	}
}
