// Package ports declares the narrow collaborator interfaces spec.md §9
// names explicitly: EventLog, ReadModelStore, SnapshotStore,
// IdempotencyStore, CommandBus, Clock. The ring pipeline and the
// Saga/Projector/Watcher depend only on these, never on a concrete
// Mongo/Postgres/RabbitMQ type, so a test can swap in an in-memory fake
// (internal/testsupport) without touching engine code.
package ports

import (
	"context"
	"time"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/shopspring/decimal"
)

// Clock abstracts time so the Watcher's timeout detection and the
// Janitor's snapshot timestamps are deterministic under test.
type Clock interface {
	Now() time.Time
}

// EventLog is the thin contract spec.md §6 draws over the append-only log:
// per-stream append, per-stream read-from-revision, global backward scan,
// and a catch-up subscription with a resume position.
type EventLog interface {
	// AppendToStream durably appends events to Account-<accountID> and
	// returns each event with its assigned Sequence and GlobalPosition
	// filled in, in the same order given.
	AppendToStream(ctx context.Context, accountID string, events []domain.AccountEvent) ([]domain.AccountEvent, error)

	// ReadStreamFrom reads accountID's stream starting at fromSequence
	// (inclusive), oldest first.
	ReadStreamFrom(ctx context.Context, accountID string, fromSequence uint64) ([]domain.AccountEvent, error)

	// ReadAllBackward scans the global `$all` stream backward from the most
	// recent event, up to depth events, oldest-scanned-last.
	ReadAllBackward(ctx context.Context, depth int) ([]domain.AccountEvent, error)

	// Subscribe starts a catch-up subscription from the given resume
	// position (the zero Position means "from start"). Delivery is
	// push-based: handler is invoked once per event, in global order, and
	// the subscription stops when ctx is cancelled or handler returns a
	// non-nil error.
	Subscribe(ctx context.Context, from domain.Position, handler func(domain.AccountEvent) error) error
}

// ReadModelStore is the narrow SQL-shape contract spec.md §6 names for the
// `accounts` table.
type ReadModelStore interface {
	UpsertDeposit(ctx context.Context, accountID string, amount decimal.Decimal) error
	UpdateWithdraw(ctx context.Context, accountID string, amount decimal.Decimal) (rowsAffected int64, err error)
	Get(ctx context.Context, accountID string) (domain.ReadModelRow, bool, error)
}

// SnapshotStore is the narrow SQL-shape contract for `account_snapshots`.
type SnapshotStore interface {
	Save(ctx context.Context, snap domain.Snapshot) error
	Latest(ctx context.Context, accountID string) (domain.Snapshot, bool, error)
	Prune(ctx context.Context, accountID string, retainCount int) error
}

// IdempotencyStore is the contract spec.md §4.7 names in full.
type IdempotencyStore interface {
	TryMarkAsProcessed(ctx context.Context, transactionID string, step domain.Step) (bool, error)
	FindStagesByTransactionID(ctx context.Context, transactionID string) ([]domain.IdempotencyRecord, error)
	FindTimeoutTransactions(ctx context.Context, olderThan time.Duration) ([]string, error)
	DeleteOldRecords(ctx context.Context, olderThan time.Duration) error
}

// CheckpointStore persists Projector/Saga resume positions.
type CheckpointStore interface {
	Save(ctx context.Context, name string, pos domain.Position) error
	Load(ctx context.Context, name string) (domain.Position, bool, error)
}

// CommandBus is the single ingress port every producer (CLI, Saga, Watcher)
// publishes through, per spec.md §9 "no aspect-style rewriting" — handlers
// build a command record and publish it explicitly.
type CommandBus interface {
	Publish(ctx context.Context, cmd domain.AccountEvent) error
}

// FactPublisher is the journal stage's fire-and-forget fanout of every
// durably-appended event onto the persistent-subscription topology
// (spec.md §2/§6 "ack / nack(retry) / nack(park)" contract).
type FactPublisher interface {
	PublishFact(ctx context.Context, evt domain.AccountEvent) error
}
