package domain

import "fmt"

// ErrAlreadyProcessed is returned by Account.EvaluateRule when a
// transaction id has already been applied — the "at most once" invariant.
var ErrAlreadyProcessed = fmt.Errorf("transaction already processed")

// BusinessRuleError wraps an apply-stage rule violation. It is informational
// only: the canonical record of the failure is the FAIL event itself
// (spec.md §7), this type exists so callers that need a typed error can
// distinguish it from an infrastructure failure. No path in this module
// currently returns it; the apply stage records the violation as a FAIL.
type BusinessRuleError struct {
	AccountID     string
	TransactionID string
	Reason        string
	Err           error
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violated for account %s tx %s: %s", e.AccountID, e.TransactionID, e.Reason)
}

func (e *BusinessRuleError) Unwrap() error { return e.Err }

// DurabilityError is raised by the journal stage on any append failure.
// Per spec.md §7 it is fatal and must halt the ring pipeline.
type DurabilityError struct {
	Stream string
	Err    error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("journal durability failure on stream %s: %v", e.Stream, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }

// ReadModelError is a typed read-model SQL failure. The read-model buffer
// stage and the Projector do not construct it: they log the failure and
// continue, and the read model reconverges via the Projector's
// at-least-once delivery.
type ReadModelError struct {
	AccountID string
	Op        string
	Err       error
}

func (e *ReadModelError) Error() string {
	return fmt.Sprintf("read model %s failed for account %s: %v", e.Op, e.AccountID, e.Err)
}

func (e *ReadModelError) Unwrap() error { return e.Err }

// SnapshotPersistError is a typed snapshot write/prune failure. The Janitor
// does not construct it: it logs the failure and continues.
type SnapshotPersistError struct {
	AccountID string
	Err       error
}

func (e *SnapshotPersistError) Error() string {
	return fmt.Sprintf("snapshot persistence failed for account %s: %v", e.AccountID, e.Err)
}

func (e *SnapshotPersistError) Unwrap() error { return e.Err }

// IdempotencyCollisionError is the expected outcome when a Saga step has
// already been reserved by another delivery. Not an error condition in the
// operational sense (spec.md §7: "Expected, not an error") but typed so
// callers can tell a collision from a genuine store failure.
type IdempotencyCollisionError struct {
	TransactionID string
	Step          string
}

func (e *IdempotencyCollisionError) Error() string {
	return fmt.Sprintf("idempotency step already reserved: tx=%s step=%s", e.TransactionID, e.Step)
}

// OrphanUnrecoveredError marks a transaction the Watcher could not resolve
// within its backward-scan depth bound. Logged for operator inspection,
// never guessed at (spec.md §4.6 step 4).
type OrphanUnrecoveredError struct {
	TransactionID string
	ScanDepth     int
}

func (e *OrphanUnrecoveredError) Error() string {
	return fmt.Sprintf("orphan transaction %s not found within scan depth %d", e.TransactionID, e.ScanDepth)
}

// LogScanMissError marks a Watcher backward scan that exhausted its depth
// bound without finding the originating WITHDRAW.
type LogScanMissError struct {
	TransactionID string
}

func (e *LogScanMissError) Error() string {
	return fmt.Sprintf("log scan exhausted without locating WITHDRAW for tx %s", e.TransactionID)
}
