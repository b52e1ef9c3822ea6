package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/ledgercore/internal/aggregate"
	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/snapshot"
	"github.com/LerianStudio/ledgercore/internal/testsupport"
)

func TestJanitor_OnTickSavesAndPrunes(t *testing.T) {
	t.Parallel()

	log := testsupport.NewFakeEventLog()
	snaps := testsupport.NewFakeSnapshotStore()
	loader := aggregate.New(log, snaps, time.Second)
	clk := testsupport.NewFakeClock(time.Unix(1000, 0))

	_, err := log.AppendToStream(context.Background(), "acc-1", []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(100), TransactionID: "tx-1"},
	})
	require.NoError(t, err)

	janitor := snapshot.New(loader, snaps, 1, clk)
	janitor.OnTick(context.Background(), domain.AccountEvent{AccountID: "acc-1", Sequence: 0})

	snap, ok, err := snaps.Latest(context.Background(), "acc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snap.Balance.Equal(decimal.NewFromInt(100)))
	assert.EqualValues(t, 0, snap.LastEventSequence)
}

func TestJanitor_RetentionKeepsOnlyRetainCount(t *testing.T) {
	t.Parallel()

	log := testsupport.NewFakeEventLog()
	snaps := testsupport.NewFakeSnapshotStore()
	loader := aggregate.New(log, snaps, time.Second)
	clk := testsupport.NewFakeClock(time.Unix(0, 0))

	janitor := snapshot.New(loader, snaps, 2, clk)

	for i := 0; i < 5; i++ {
		_, err := log.AppendToStream(context.Background(), "acc-1", []domain.AccountEvent{
			{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), TransactionID: "tx"},
		})
		require.NoError(t, err)

		loader.EvictAll()
		janitor.OnTick(context.Background(), domain.AccountEvent{AccountID: "acc-1", Sequence: uint64(i)})
	}

	snap, ok, err := snaps.Latest(context.Background(), "acc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 4, snap.LastEventSequence)
}

func TestJanitor_DefaultsRetainCountWhenNonPositive(t *testing.T) {
	t.Parallel()

	log := testsupport.NewFakeEventLog()
	snaps := testsupport.NewFakeSnapshotStore()
	loader := aggregate.New(log, snaps, time.Second)
	clk := testsupport.NewFakeClock(time.Unix(0, 0))

	janitor := snapshot.New(loader, snaps, 0, clk)
	require.NotNil(t, janitor)
}
