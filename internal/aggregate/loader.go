// Package aggregate implements the snapshot-accelerated event-replay loop
// and L1 cache from spec.md §4.2.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
	"github.com/LerianStudio/ledgercore/internal/ports"
)

// Loader resolves an Account aggregate via three cascading strategies: L1
// cache hit, snapshot-plus-replay, or zero-balance-plus-full-replay.
// Scoped to the pipeline object per spec.md §9 ("do not expose as
// module-level singletons") — callers construct one Loader and share it.
type Loader struct {
	log     ports.EventLog
	snaps   ports.SnapshotStore
	timeout time.Duration

	// mu guards cache. The apply stage is the only mutator of cached
	// aggregates' contents (via Account.Apply), but eviction (tests,
	// benchmarks) can race with concurrent loads, hence the lock around
	// the map itself rather than the aggregates' fields.
	mu    sync.RWMutex
	cache map[string]*domain.Account
}

// New builds a Loader. readTimeout bounds the replay read (default 5s per
// spec.md §4.2/§6).
func New(log ports.EventLog, snaps ports.SnapshotStore, readTimeout time.Duration) *Loader {
	return &Loader{
		log:     log,
		snaps:   snaps,
		timeout: readTimeout,
		cache:   make(map[string]*domain.Account),
	}
}

// Load resolves accountID's aggregate. The returned pointer is the
// canonical in-memory instance (spec.md §4.2: "callers mutate it, which is
// safe because only the apply stage mutates and it is single-threaded").
func (l *Loader) Load(ctx context.Context, accountID string) *domain.Account {
	if acc := l.cacheGet(accountID); acc != nil {
		return acc
	}

	base := l.restoreBase(ctx, accountID)
	fromSeq := base.Version

	replayCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	events, err := l.log.ReadStreamFrom(replayCtx, accountID, fromSeq)
	if err != nil {
		// "it never fabricates state" — return the base aggregate
		// (fresh or snapshot-restored) unchanged.
		obs.FromContext(ctx).Warn("aggregate replay read failed, using base state",
			"account_id", accountID, "error", err.Error())

		l.cachePut(accountID, base)

		return base
	}

	for _, evt := range events {
		base.Apply(evt)
	}

	l.cachePut(accountID, base)

	return base
}

// restoreBase returns the starting point for replay: the latest snapshot
// restored, or a fresh zero-balance aggregate if none exists.
func (l *Loader) restoreBase(ctx context.Context, accountID string) *domain.Account {
	if l.snaps == nil {
		return domain.NewAccount(accountID)
	}

	snap, ok, err := l.snaps.Latest(ctx, accountID)
	if err != nil || !ok {
		return domain.NewAccount(accountID)
	}

	return snap.Restore()
}

func (l *Loader) cacheGet(accountID string) *domain.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.cache[accountID]
}

func (l *Loader) cachePut(accountID string, acc *domain.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache[accountID] = acc
}

// Evict removes accountID from the L1 cache. Exposed explicitly for tests
// and benchmarking (spec.md §4.2/§9) — never called on the hot path.
func (l *Loader) Evict(accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.cache, accountID)
}

// EvictAll clears the entire L1 cache.
func (l *Loader) EvictAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache = make(map[string]*domain.Account)
}
