// Package domain holds the aggregate, the event it is folded from, and the
// supporting records (snapshots, idempotency rows, checkpoints, read-model
// rows) that the rest of the engine operates on.
package domain

import (
	"github.com/shopspring/decimal"
)

// EventType is the logical kind carried by an AccountEvent. FAIL is a
// first-class variant rather than an overloaded field on DEPOSIT/WITHDRAW,
// per spec.md §9 "prefer a sum type for event types".
type EventType string

const (
	EventDeposit  EventType = "DEPOSIT"
	EventWithdraw EventType = "WITHDRAW"
	EventFail     EventType = "FAIL"
)

// Well-known description tags. These are not free text: the Saga and the
// Watcher branch on exact equality against them.
const (
	// DescriptionTransferDeposit marks phase 2 of a transfer (the deposit
	// into the target account) so a later FAIL on the same description can
	// be recognised as "this transfer's deposit leg failed".
	DescriptionTransferDeposit = "TRANSFER_DEPOSIT"
	// DescriptionCompensation marks a refund issued by the Saga back to the
	// original source account of a failed transfer.
	DescriptionCompensation = "COMPENSATION"
	// DescriptionTimeoutRecoveryTrigger is a reserved tag. Nothing in this
	// module emits it: the Watcher's recovery trigger is tagged
	// DescriptionTransferDeposit so the Saga's compensation rule handles it.
	DescriptionTimeoutRecoveryTrigger = "TIMEOUT_RECOVERY_TRIGGER"
	// DescriptionSagaSilence is the resolution of spec.md §9's open question
	// about the sentinel description: it is kept as a production code path
	// (operators can use it to deliberately quarantine a transfer from
	// automatic compensation so the Watcher's recovery path fires instead),
	// gated behind this explicit, logged, non-default value rather than an
	// unlabeled magic string.
	DescriptionSagaSilence = "SAGA_SILENCE"
)

// AccountEvent is the durable domain fact. TargetAccountID is set on
// WITHDRAW events that are the first phase of a transfer, on the Saga's
// phase-2 TRANSFER_DEPOSIT (naming the original source, carried into the
// FAIL if that deposit is rejected), and on the Watcher's recovery FAIL.
type AccountEvent struct {
	AccountID       string
	Amount          decimal.Decimal
	Type            EventType
	TransactionID   string
	TargetAccountID string // optional
	Description     string // optional, one of the Description* tags or ""

	// Sequence is the per-account stream revision assigned by the event log
	// on append (0-based). GlobalPosition is assigned by the log for the
	// cross-stream `$all` ordering that catch-up subscriptions resume from.
	Sequence       uint64
	GlobalPosition Position
}

// Position is the (commit, prepare) pair the log/checkpoint tables use to
// track a resumable read position in the global stream, matching the shape
// spec.md §3 names for Projector/Saga checkpoints.
type Position struct {
	Commit  int64
	Prepare int64
}

// Before reports whether p occurred strictly before other in global order.
func (p Position) Before(other Position) bool {
	if p.Commit != other.Commit {
		return p.Commit < other.Commit
	}

	return p.Prepare < other.Prepare
}

// IsFail reports whether the event is the canonical "business failure"
// variant. Downstream components must never treat a FAIL as balance
// affecting.
func (e AccountEvent) IsFail() bool {
	return e.Type == EventFail
}

// IsTransferWithdraw reports whether this event is phase 1 of a transfer:
// a WITHDRAW with a target account set.
func (e AccountEvent) IsTransferWithdraw() bool {
	return e.Type == EventWithdraw && e.TargetAccountID != ""
}

// IsFailedTransferDeposit reports whether this event is a failed phase 2
// leg of a transfer, the trigger for Saga compensation.
func (e AccountEvent) IsFailedTransferDeposit() bool {
	return e.Type == EventFail && e.Description == DescriptionTransferDeposit
}
