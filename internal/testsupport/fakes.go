// Package testsupport provides in-memory fakes for every port in
// internal/ports, standing in for the Mongo/Postgres/RabbitMQ/Redis
// adapters in tests. The exercise never runs live containers (see
// DESIGN.md's note on dropping testcontainers-go), so every test in this
// repository is written against these fakes instead.
package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

// FakeClock is a deterministic ports.Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock builds a FakeClock fixed at at.
func NewFakeClock(at time.Time) *FakeClock {
	return &FakeClock{now: at}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the fake clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// FakeEventLog is an in-memory ports.EventLog: a slice of streams plus a
// global slice in append order, with push-based Subscribe delivery
// implemented by polling the global slice.
type FakeEventLog struct {
	mu       sync.Mutex
	streams  map[string][]domain.AccountEvent
	global   []domain.AccountEvent
	notify   chan struct{}
}

// NewFakeEventLog builds an empty FakeEventLog.
func NewFakeEventLog() *FakeEventLog {
	return &FakeEventLog{
		streams: make(map[string][]domain.AccountEvent),
		notify:  make(chan struct{}, 1),
	}
}

func (f *FakeEventLog) AppendToStream(_ context.Context, accountID string, events []domain.AccountEvent) ([]domain.AccountEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stream := f.streams[accountID]
	out := make([]domain.AccountEvent, len(events))

	for i, evt := range events {
		evt.Sequence = uint64(len(stream))
		// 1-based, matching mongostore's $inc counter: the first event ever
		// appended gets Commit 1, so a zero-value Position{} checkpoint
		// (never saved) correctly means "before everything".
		evt.GlobalPosition = domain.Position{Commit: int64(len(f.global)) + 1}
		stream = append(stream, evt)
		f.global = append(f.global, evt)
		out[i] = evt
	}

	f.streams[accountID] = stream

	select {
	case f.notify <- struct{}{}:
	default:
	}

	return out, nil
}

func (f *FakeEventLog) ReadStreamFrom(_ context.Context, accountID string, fromSequence uint64) ([]domain.AccountEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.AccountEvent

	for _, evt := range f.streams[accountID] {
		if evt.Sequence >= fromSequence {
			out = append(out, evt)
		}
	}

	return out, nil
}

func (f *FakeEventLog) ReadAllBackward(_ context.Context, depth int) ([]domain.AccountEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.global)
	if n > depth {
		n = depth
	}

	out := make([]domain.AccountEvent, n)
	for i := 0; i < n; i++ {
		out[i] = f.global[len(f.global)-1-i]
	}

	return out, nil
}

func (f *FakeEventLog) Subscribe(ctx context.Context, from domain.Position, handler func(domain.AccountEvent) error) error {
	last := from.Commit

	for {
		f.mu.Lock()
		pending := make([]domain.AccountEvent, 0)

		for _, evt := range f.global {
			if evt.GlobalPosition.Commit > last {
				pending = append(pending, evt)
			}
		}
		f.mu.Unlock()

		for _, evt := range pending {
			if err := handler(evt); err != nil {
				return err
			}

			last = evt.GlobalPosition.Commit
		}

		select {
		case <-ctx.Done():
			return nil
		case <-f.notify:
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// FakeReadModelStore is an in-memory ports.ReadModelStore.
type FakeReadModelStore struct {
	mu   sync.Mutex
	rows map[string]domain.ReadModelRow
}

// NewFakeReadModelStore builds an empty FakeReadModelStore.
func NewFakeReadModelStore() *FakeReadModelStore {
	return &FakeReadModelStore{rows: make(map[string]domain.ReadModelRow)}
}

func (f *FakeReadModelStore) UpsertDeposit(_ context.Context, accountID string, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row := f.rows[accountID]
	row.AccountID = accountID
	row.Balance = row.Balance.Add(amount)
	row.LastUpdatedAt = time.Now()
	f.rows[accountID] = row

	return nil
}

func (f *FakeReadModelStore) UpdateWithdraw(_ context.Context, accountID string, amount decimal.Decimal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[accountID]
	if !ok {
		return 0, nil
	}

	row.Balance = row.Balance.Sub(amount)
	row.LastUpdatedAt = time.Now()
	f.rows[accountID] = row

	return 1, nil
}

func (f *FakeReadModelStore) Get(_ context.Context, accountID string) (domain.ReadModelRow, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[accountID]

	return row, ok, nil
}

// FakeSnapshotStore is an in-memory ports.SnapshotStore.
type FakeSnapshotStore struct {
	mu   sync.Mutex
	rows map[string][]domain.Snapshot // keyed by account id, ordered by insertion
}

// NewFakeSnapshotStore builds an empty FakeSnapshotStore.
func NewFakeSnapshotStore() *FakeSnapshotStore {
	return &FakeSnapshotStore{rows: make(map[string][]domain.Snapshot)}
}

func (f *FakeSnapshotStore) Save(_ context.Context, snap domain.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rows[snap.AccountID] = append(f.rows[snap.AccountID], snap)

	return nil
}

func (f *FakeSnapshotStore) Latest(_ context.Context, accountID string) (domain.Snapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rows := f.rows[accountID]
	if len(rows) == 0 {
		return domain.Snapshot{}, false, nil
	}

	best := rows[0]
	for _, r := range rows[1:] {
		if r.LastEventSequence > best.LastEventSequence {
			best = r
		}
	}

	return best, true, nil
}

func (f *FakeSnapshotStore) Prune(_ context.Context, accountID string, retainCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rows := f.rows[accountID]
	if len(rows) <= retainCount {
		return nil
	}

	sorted := append([]domain.Snapshot(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LastEventSequence > sorted[j].LastEventSequence
	})

	f.rows[accountID] = sorted[:retainCount]

	return nil
}

// FakeIdempotencyStore is an in-memory ports.IdempotencyStore.
type FakeIdempotencyStore struct {
	mu      sync.Mutex
	records []domain.IdempotencyRecord
}

// NewFakeIdempotencyStore builds an empty FakeIdempotencyStore.
func NewFakeIdempotencyStore() *FakeIdempotencyStore {
	return &FakeIdempotencyStore{}
}

func (f *FakeIdempotencyStore) TryMarkAsProcessed(_ context.Context, transactionID string, step domain.Step) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.records {
		if r.TransactionID == transactionID && r.Step == step {
			return false, nil
		}
	}

	f.records = append(f.records, domain.IdempotencyRecord{
		TransactionID: transactionID,
		Step:          step,
		ProcessedAt:   time.Now(),
	})

	return true, nil
}

func (f *FakeIdempotencyStore) FindStagesByTransactionID(_ context.Context, transactionID string) ([]domain.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.IdempotencyRecord

	for _, r := range f.records {
		if r.TransactionID == transactionID {
			out = append(out, r)
		}
	}

	return out, nil
}

func (f *FakeIdempotencyStore) FindTimeoutTransactions(_ context.Context, olderThan time.Duration) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)

	seenInit := make(map[string]time.Time)
	seenTerminal := make(map[string]bool)

	for _, r := range f.records {
		switch r.Step {
		case domain.StepInit:
			seenInit[r.TransactionID] = r.ProcessedAt
		case domain.StepComplete, domain.StepCompensation:
			seenTerminal[r.TransactionID] = true
		}
	}

	var out []string

	for txID, at := range seenInit {
		if !seenTerminal[txID] && at.Before(cutoff) {
			out = append(out, txID)
		}
	}

	sort.Strings(out)

	return out, nil
}

func (f *FakeIdempotencyStore) DeleteOldRecords(_ context.Context, olderThan time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)

	kept := f.records[:0]

	for _, r := range f.records {
		if r.ProcessedAt.After(cutoff) {
			kept = append(kept, r)
		}
	}

	f.records = kept

	return nil
}

// FakeCheckpointStore is an in-memory ports.CheckpointStore.
type FakeCheckpointStore struct {
	mu    sync.Mutex
	rows  map[string]domain.Position
}

// NewFakeCheckpointStore builds an empty FakeCheckpointStore.
func NewFakeCheckpointStore() *FakeCheckpointStore {
	return &FakeCheckpointStore{rows: make(map[string]domain.Position)}
}

func (f *FakeCheckpointStore) Save(_ context.Context, name string, pos domain.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rows[name] = pos

	return nil
}

func (f *FakeCheckpointStore) Load(_ context.Context, name string) (domain.Position, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pos, ok := f.rows[name]

	return pos, ok, nil
}

// FakeCommandBus is an in-memory ports.CommandBus that feeds published
// commands straight into a ring.Pipeline-shaped Publish function, mimicking
// the RabbitMQ ingress loop's role without a broker.
type FakeCommandBus struct {
	Sink func(ctx context.Context, events []domain.AccountEvent) ([]domain.AccountEvent, error)
}

func (b *FakeCommandBus) Publish(ctx context.Context, cmd domain.AccountEvent) error {
	_, err := b.Sink(ctx, []domain.AccountEvent{cmd})

	return err
}
