package domain

import (
	"github.com/shopspring/decimal"
)

// Account is the aggregate: the fold of its events. The zero value is a
// fresh, never-before-seen account (balance zero, version zero, no
// processed transactions) — spec.md §9's "first-seen" flag is derived from
// Version == 0 && len(Processed) == 0 rather than stored separately, since
// that is exactly the condition spec.md describes ("zero-balance,
// zero-history aggregate").
type Account struct {
	ID      string
	Balance decimal.Decimal
	Version uint64
	// Processed is the set of steps already applied to this account, keyed
	// by processedKey(transactionID, description). A bare transaction id
	// is not always a unique key on its own: a compensated transfer's
	// WITHDRAW and the Saga's COMPENSATION refund it triggers both carry
	// the same transaction id back to the same source account, and are two
	// distinct facts that must each apply exactly once, not one fact that
	// must apply once. At-most-once application is enforced by checking
	// membership before Apply mutates state.
	Processed map[string]struct{}
}

// processedKey derives the at-most-once dedup key for an event applied to
// an account. Ordinary commands (no description) key on the bare
// transaction id, preserving the simple "same tx id, same account, same
// command" idempotency check. A described event — a Saga-driven leg such
// as TRANSFER_DEPOSIT or COMPENSATION — keys on (transaction id,
// description), since the same transaction id legitimately revisits the
// same account under a different leg of the choreography.
func processedKey(transactionID, description string) string {
	if description == "" {
		return transactionID
	}

	return transactionID + "|" + description
}

// NewAccount returns a fresh, zero-balance aggregate.
func NewAccount(id string) *Account {
	return &Account{
		ID:        id,
		Balance:   decimal.Zero,
		Processed: make(map[string]struct{}),
	}
}

// IsFirstSeen reports whether this aggregate has never applied an event —
// spec.md §9's resolved rule: a transfer's DEPOSIT leg into a first-seen
// account is rejected, so a legitimately new account can only become a
// transfer target after it has received at least one direct deposit.
func (a *Account) IsFirstSeen() bool {
	return a.Version == 0 && len(a.Processed) == 0
}

// HasProcessed reports whether transactionID's ordinary (undescribed) leg
// has already been applied, enforcing the "at most once" invariant from
// spec.md §3.
func (a *Account) HasProcessed(transactionID string) bool {
	return a.HasProcessedStep(transactionID, "")
}

// HasProcessedStep reports whether the specific (transactionID,
// description) leg has already been applied to this account — the
// granularity EvaluateRule's duplicate check actually needs, since a
// transfer's WITHDRAW and its eventual COMPENSATION refund share a
// transaction id on the same account but are different legs.
func (a *Account) HasProcessedStep(transactionID, description string) bool {
	_, ok := a.Processed[processedKey(transactionID, description)]
	return ok
}

// CloneProcessed returns a defensive, independent copy of the processed-tx
// set, used by the Snapshot Janitor (spec.md §4.3 "takes a defensive copy").
func (a *Account) CloneProcessed() map[string]struct{} {
	out := make(map[string]struct{}, len(a.Processed))
	for k := range a.Processed {
		out[k] = struct{}{}
	}

	return out
}

// Apply folds one event into the aggregate. It is the sole mutation point
// for an aggregate and must only ever be called by the ring's single apply
// stage (spec.md §4.1) or by replay during aggregate reconstruction
// (spec.md §4.2) — both contexts are inherently single-threaded per
// account. Apply never rewrites FAIL semantics itself: the caller decides
// the event's final Type (via EvaluateRule) before calling Apply, and a
// FAIL event leaves the balance unchanged but still marks the transaction
// processed and advances Version, since a FAIL is still a durable fact
// that must not replay as "never happened".
func (a *Account) Apply(evt AccountEvent) {
	switch evt.Type {
	case EventDeposit:
		a.Balance = a.Balance.Add(evt.Amount)
	case EventWithdraw:
		a.Balance = a.Balance.Sub(evt.Amount)
	case EventFail:
		// no balance effect
	}

	if evt.TransactionID != "" {
		a.Processed[processedKey(evt.TransactionID, evt.Description)] = struct{}{}
	}

	a.Version = evt.Sequence + 1
}

// EvaluateRule decides, in isolation from any mutation, whether evt would
// succeed against the current aggregate state (a is the aggregate for
// evt.AccountID — the account the event is posted against), and returns the
// event with its Type rewritten to FAIL (description preserved) on
// business-rule violation. This is the apply stage's "silent FAIL-rewrite"
// from spec.md §7 — the single point at which a business error becomes a
// recorded fact. It never mutates the receiver.
func (a *Account) EvaluateRule(evt AccountEvent) (AccountEvent, error) {
	if evt.TransactionID != "" && a.HasProcessedStep(evt.TransactionID, evt.Description) {
		return evt, ErrAlreadyProcessed
	}

	switch evt.Type {
	case EventWithdraw:
		if a.Balance.LessThan(evt.Amount) {
			evt.Type = EventFail
			return evt, nil
		}
	case EventDeposit:
		// target-must-exist rule: a TRANSFER_DEPOSIT into an account that
		// has never applied an event is rejected (spec.md §9, resolved).
		if evt.Description == DescriptionTransferDeposit && a.IsFirstSeen() {
			evt.Type = EventFail
			return evt, nil
		}
	default:
		evt.Type = EventFail
		return evt, nil
	}

	return evt, nil
}
