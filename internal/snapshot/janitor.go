// Package snapshot implements the Snapshot Janitor from spec.md §4.3:
// threshold-driven snapshot emission plus retention pruning.
package snapshot

import (
	"context"

	"github.com/LerianStudio/ledgercore/internal/aggregate"
	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
	"github.com/LerianStudio/ledgercore/internal/ports"
)

// Janitor takes a defensive snapshot of an account's aggregate and prunes
// old snapshots. It is invoked synchronously from the ring's snapshot-tick
// stage, never on its own schedule — the ring decides *when* (every N
// events), the Janitor decides *what* (a correct, isolated copy).
type Janitor struct {
	loader      *aggregate.Loader
	store       ports.SnapshotStore
	retainCount int
	clock       ports.Clock
}

// New builds a Janitor. retainCount defaults to 2 per spec.md §4.3.
func New(loader *aggregate.Loader, store ports.SnapshotStore, retainCount int, clk ports.Clock) *Janitor {
	if retainCount <= 0 {
		retainCount = 2
	}

	return &Janitor{loader: loader, store: store, retainCount: retainCount, clock: clk}
}

// OnTick is the ring's SnapshotTickFunc. Pruning failure is non-fatal
// (spec.md §7); persistence failure is logged and otherwise swallowed.
func (j *Janitor) OnTick(ctx context.Context, evt domain.AccountEvent) {
	logger := obs.FromContext(ctx)

	acc := j.loader.Load(ctx, evt.AccountID)
	snap := domain.SnapshotFromAccount(acc, evt.Sequence, j.clock.Now())

	if err := j.store.Save(ctx, snap); err != nil {
		logger.Warn("snapshot persistence failed", "account_id", evt.AccountID, "error", err.Error())
		return
	}

	if err := j.store.Prune(ctx, evt.AccountID, j.retainCount); err != nil {
		logger.Warn("snapshot retention pruning failed", "account_id", evt.AccountID, "error", err.Error())
	}
}
