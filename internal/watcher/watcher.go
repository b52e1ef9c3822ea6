// Package watcher implements the periodic orphan-transaction recovery
// scan from spec.md §4.6: find INIT rows past the timeout threshold with
// no terminal row, reconstruct the original WITHDRAW from the log by
// scanning backward up to a bound, and inject a recovery command the Saga
// will treat as a compensation trigger.
package watcher

import (
	"context"
	"time"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
	"github.com/LerianStudio/ledgercore/internal/ports"
)

// Watcher is the runtime: one periodic tick, one idempotency query, one
// backward log scan per orphan candidate, at most one emitted command per
// candidate.
type Watcher struct {
	idempotency ports.IdempotencyStore
	log         ports.EventLog
	bus         ports.CommandBus
	clock       ports.Clock
	logger      obs.Logger

	period    time.Duration
	timeout   time.Duration
	scanDepth int
}

// New builds a Watcher.
func New(idempotency ports.IdempotencyStore, log ports.EventLog, bus ports.CommandBus, clk ports.Clock, period, timeout time.Duration, scanDepth int, logger obs.Logger) *Watcher {
	return &Watcher{
		idempotency: idempotency,
		log:         log,
		bus:         bus,
		clock:       clk,
		period:      period,
		timeout:     timeout,
		scanDepth:   scanDepth,
		logger:      logger,
	}
}

// Run implements platform.Subsystem: ticks every period until ctx is
// cancelled, running one scan per tick.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	orphans, err := w.idempotency.FindTimeoutTransactions(ctx, w.timeout)
	if err != nil {
		w.logger.Error("watcher orphan query failed", "error", err.Error())

		return
	}

	for _, txID := range orphans {
		w.recover(ctx, txID)
	}
}

// recover scans the global fact stream backward up to scanDepth events
// looking for the original WITHDRAW that started transaction txID. When
// found, it emits the recovery trigger spec.md §4.6 step 3 describes: a
// FAIL tagged TRANSFER_DEPOSIT carrying the original account id in both
// AccountID and TargetAccountID (spec.md §9, kept as specified — both
// fields name the same refund destination the Saga's compensation path
// reads from TargetAccountID).
func (w *Watcher) recover(ctx context.Context, txID string) {
	events, err := w.log.ReadAllBackward(ctx, w.scanDepth)
	if err != nil {
		w.logger.Error("watcher backward scan failed", "transaction_id", txID, "error", err.Error())

		return
	}

	for _, evt := range events {
		if evt.Type != domain.EventWithdraw || evt.TransactionID != txID {
			continue
		}

		trigger := domain.AccountEvent{
			AccountID:       evt.AccountID,
			Amount:          evt.Amount,
			Type:            domain.EventFail,
			TransactionID:   evt.TransactionID,
			TargetAccountID: evt.AccountID,
			Description:     domain.DescriptionTransferDeposit,
		}

		if err := w.bus.Publish(ctx, trigger); err != nil {
			w.logger.Error("watcher recovery publish failed", "transaction_id", txID, "error", err.Error())
		}

		return
	}

	w.logger.Warn("watcher log scan exhausted without finding original withdraw",
		"transaction_id", txID, "scan_depth", w.scanDepth)
}
