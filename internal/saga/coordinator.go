// Package saga implements the choreographed transfer process manager
// spec.md §4.4 describes: a pure consumer of the global fact stream that
// reserves idempotency steps and emits at most one outbound command per
// incoming event. Grounded on kzh125-go-saga's event-to-decision shape
// (coordinator.go) but built against this engine's own ports rather than
// that teacher's Kafka/Zookeeper stack, since spec.md §9 requires the Saga
// to subscribe to the log independently of the Projector (no shared
// dependency between the two).
package saga

import (
	"context"
	"fmt"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
	"github.com/LerianStudio/ledgercore/internal/ports"
)

// CheckpointName is the Saga's own named row in CheckpointStore, kept
// entirely separate from the Projector's (spec.md §9 "keep acyclic").
const CheckpointName = "saga"

// Coordinator is the Saga's runtime: one EventLog.Subscribe loop, one
// idempotency reservation per decision, one CommandBus publish per
// decision.
type Coordinator struct {
	log          ports.EventLog
	idempotency  ports.IdempotencyStore
	checkpoints  ports.CheckpointStore
	bus          ports.CommandBus
	logger       obs.Logger
}

// New builds a Coordinator.
func New(log ports.EventLog, idempotency ports.IdempotencyStore, checkpoints ports.CheckpointStore, bus ports.CommandBus, logger obs.Logger) *Coordinator {
	return &Coordinator{log: log, idempotency: idempotency, checkpoints: checkpoints, bus: bus, logger: logger}
}

// Run implements platform.Subsystem: resumes from the Saga's checkpoint
// (or the start of the stream) and processes every fact until ctx is
// cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	from, _, err := c.checkpoints.Load(ctx, CheckpointName)
	if err != nil {
		return fmt.Errorf("load saga checkpoint: %w", err)
	}

	return c.log.Subscribe(ctx, from, func(evt domain.AccountEvent) error {
		if err := c.handle(ctx, evt); err != nil {
			return err
		}

		return c.checkpoints.Save(ctx, CheckpointName, evt.GlobalPosition)
	})
}

// handle applies the Saga's four mutually exclusive recognition rules
// (spec.md §4.4, plus the COMPLETE step) to one incoming fact.
func (c *Coordinator) handle(ctx context.Context, evt domain.AccountEvent) error {
	switch {
	case evt.Description == domain.DescriptionSagaSilence:
		// Resolved open question (SPEC_FULL.md §9): kept as a deliberate,
		// logged quarantine path, not a latent bug.
		c.logger.Info("saga silence sentinel observed, skipping without reservation",
			"transaction_id", evt.TransactionID)

		return nil

	case evt.IsTransferWithdraw():
		return c.handleTransferWithdraw(ctx, evt)

	case evt.IsFailedTransferDeposit():
		return c.handleFailedTransferDeposit(ctx, evt)

	case evt.Type == domain.EventDeposit && evt.Description == domain.DescriptionTransferDeposit:
		return c.handleCompletedTransferDeposit(ctx, evt)

	default:
		return nil
	}
}

// handleCompletedTransferDeposit marks the transfer COMPLETED the moment
// phase 2 succeeds. Without this, the Watcher's anti-join (spec.md §4.6
// step 1, "no COMPLETE or COMPENSATION row") would treat every finished
// transfer as a perpetual orphan past the timeout threshold — the
// procedural bullet list in spec.md §4.4 omits writing this step, but the
// state machine it names in the same section ("DEPOSIT_PENDING →
// COMPLETED") requires it to exist somewhere; see DESIGN.md.
func (c *Coordinator) handleCompletedTransferDeposit(ctx context.Context, evt domain.AccountEvent) error {
	_, err := c.idempotency.TryMarkAsProcessed(ctx, evt.TransactionID, domain.StepComplete)
	if err != nil {
		return fmt.Errorf("reserve complete step: %w", err)
	}

	return nil
}

// handleTransferWithdraw is phase-1 recognition: a WITHDRAW with a target
// account reserves (tx, INIT) and emits phase 2, a DEPOSIT into the
// target carrying TargetAccountID back to the original source so a later
// failure can be compensated.
func (c *Coordinator) handleTransferWithdraw(ctx context.Context, evt domain.AccountEvent) error {
	won, err := c.idempotency.TryMarkAsProcessed(ctx, evt.TransactionID, domain.StepInit)
	if err != nil {
		return fmt.Errorf("reserve init step: %w", err)
	}

	if !won {
		c.logger.Info("saga init already reserved, dropping duplicate", "transaction_id", evt.TransactionID)

		return nil
	}

	deposit := domain.AccountEvent{
		AccountID:       evt.TargetAccountID,
		Amount:          evt.Amount,
		Type:            domain.EventDeposit,
		TransactionID:   evt.TransactionID,
		TargetAccountID: evt.AccountID,
		Description:     domain.DescriptionTransferDeposit,
	}

	return c.bus.Publish(ctx, deposit)
}

// handleFailedTransferDeposit is compensation recognition: a FAIL tagged
// TRANSFER_DEPOSIT reserves (tx, COMPENSATION) and refunds the original
// source. An event with no TargetAccountID is an incomplete recovery
// (spec.md §4.4 "abandoned"); it cannot be compensated because the refund
// destination is unknown.
func (c *Coordinator) handleFailedTransferDeposit(ctx context.Context, evt domain.AccountEvent) error {
	if evt.TargetAccountID == "" {
		c.logger.Warn("incomplete transfer-deposit failure, no refund target, abandoning",
			"transaction_id", evt.TransactionID)

		return nil
	}

	won, err := c.idempotency.TryMarkAsProcessed(ctx, evt.TransactionID, domain.StepCompensation)
	if err != nil {
		return fmt.Errorf("reserve compensation step: %w", err)
	}

	if !won {
		c.logger.Info("saga compensation already reserved, dropping duplicate", "transaction_id", evt.TransactionID)

		return nil
	}

	refund := domain.AccountEvent{
		AccountID:     evt.TargetAccountID,
		Amount:        evt.Amount,
		Type:          domain.EventDeposit,
		TransactionID: evt.TransactionID,
		Description:   domain.DescriptionCompensation,
	}

	return c.bus.Publish(ctx, refund)
}
