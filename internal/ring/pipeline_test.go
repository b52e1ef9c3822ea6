package ring_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/ring"
)

func newTestPipeline(t *testing.T, capacity int, journal ring.JournalFunc) *ring.Pipeline {
	t.Helper()

	return ring.New(ring.Config{
		Capacity: capacity,
		Apply: func(_ context.Context, evt domain.AccountEvent) domain.AccountEvent {
			return evt
		},
		Journal:   journal,
		ReadModel: func(context.Context, []domain.AccountEvent) {},
	})
}

func runStagesInBackground(t *testing.T, p *ring.Pipeline) (context.CancelFunc, *sync.WaitGroup) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		_ = p.RunStages(ctx)
	}()

	return cancel, &wg
}

func TestPipeline_PublishDeliversEventsInOrderToJournal(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex

	var seen []string

	journal := func(_ context.Context, batch []domain.AccountEvent) error {
		mu.Lock()
		defer mu.Unlock()

		for _, evt := range batch {
			seen = append(seen, evt.TransactionID)
		}

		return nil
	}

	p := newTestPipeline(t, 8, journal)
	cancel, wg := runStagesInBackground(t, p)
	defer func() {
		cancel()
		wg.Wait()
	}()

	_, err := p.Publish(context.Background(), []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), TransactionID: "tx-1"},
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(2), TransactionID: "tx-2"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(seen) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"tx-1", "tx-2"}, seen)
}

func TestPipeline_JournalFailureHaltsPipeline(t *testing.T) {
	t.Parallel()

	journalErr := assert.AnError

	p := newTestPipeline(t, 4, func(context.Context, []domain.AccountEvent) error {
		return journalErr
	})

	ctx := context.Background()
	err := make(chan error, 1)

	go func() { err <- p.RunStages(ctx) }()

	_, pubErr := p.Publish(ctx, []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), TransactionID: "tx-1"},
	})
	require.NoError(t, pubErr)

	select {
	case runErr := <-err:
		assert.ErrorIs(t, runErr, journalErr)
	case <-time.After(time.Second):
		t.Fatal("RunStages did not halt after journal failure")
	}

	_, pubErr = p.Publish(ctx, []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), TransactionID: "tx-2"},
	})
	assert.Error(t, pubErr)
}

func TestPipeline_PublishBlocksWhenRingIsFull(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})

	var once sync.Once

	unblock := func() { once.Do(func() { close(block) }) }

	journal := func(context.Context, []domain.AccountEvent) error {
		<-block

		return nil
	}

	p := newTestPipeline(t, 2, journal)
	cancel, wg := runStagesInBackground(t, p)
	defer func() {
		unblock()
		cancel()
		wg.Wait()
	}()

	// Fill the ring's two slots; the journal stage is blocked on the first
	// batch, so the read-model/snapshot gates never advance.
	_, err := p.Publish(context.Background(), []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), TransactionID: "tx-1"},
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), TransactionID: "tx-2"},
	})
	require.NoError(t, err)

	published := make(chan struct{})

	go func() {
		_, _ = p.Publish(context.Background(), []domain.AccountEvent{
			{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), TransactionID: "tx-3"},
		})
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("Publish should have blocked while the ring is full")
	case <-time.After(100 * time.Millisecond):
	}

	unblock()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("Publish never unblocked after capacity freed")
	}
}

func TestPipeline_SnapshotTickFiresOnThreshold(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex

	var ticks int

	p := ring.New(ring.Config{
		Capacity:      8,
		SnapshotEvery: 2,
		Apply: func(_ context.Context, evt domain.AccountEvent) domain.AccountEvent {
			return evt
		},
		Journal:   func(context.Context, []domain.AccountEvent) error { return nil },
		ReadModel: func(context.Context, []domain.AccountEvent) {},
		SnapshotTick: func(context.Context, domain.AccountEvent) {
			mu.Lock()
			ticks++
			mu.Unlock()
		},
	})

	cancel, wg := runStagesInBackground(t, p)
	defer func() {
		cancel()
		wg.Wait()
	}()

	for i := 0; i < 4; i++ {
		_, err := p.Publish(context.Background(), []domain.AccountEvent{
			{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), TransactionID: "tx"},
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return ticks == 2
	}, time.Second, time.Millisecond)
}
