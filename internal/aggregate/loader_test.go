package aggregate_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/ledgercore/internal/aggregate"
	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/testsupport"
)

func TestLoader_FreshAccountHasZeroBalance(t *testing.T) {
	t.Parallel()

	log := testsupport.NewFakeEventLog()
	snaps := testsupport.NewFakeSnapshotStore()
	loader := aggregate.New(log, snaps, time.Second)

	acc := loader.Load(context.Background(), "acc-1")
	assert.True(t, acc.Balance.IsZero())
	assert.True(t, acc.IsFirstSeen())
}

func TestLoader_ReplaysFullStreamWhenNoSnapshot(t *testing.T) {
	t.Parallel()

	log := testsupport.NewFakeEventLog()
	snaps := testsupport.NewFakeSnapshotStore()

	_, err := log.AppendToStream(context.Background(), "acc-1", []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(100), TransactionID: "tx-1"},
		{AccountID: "acc-1", Type: domain.EventWithdraw, Amount: decimal.NewFromInt(30), TransactionID: "tx-2"},
	})
	require.NoError(t, err)

	loader := aggregate.New(log, snaps, time.Second)

	acc := loader.Load(context.Background(), "acc-1")
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(70)))
}

func TestLoader_SnapshotAcceleratesReplay(t *testing.T) {
	t.Parallel()

	log := testsupport.NewFakeEventLog()
	snaps := testsupport.NewFakeSnapshotStore()

	appended, err := log.AppendToStream(context.Background(), "acc-1", []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(100), TransactionID: "tx-1"},
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(50), TransactionID: "tx-2"},
	})
	require.NoError(t, err)

	lastSeq := appended[len(appended)-1].Sequence

	require.NoError(t, snaps.Save(context.Background(), domain.Snapshot{
		AccountID:         "acc-1",
		Balance:           decimal.NewFromInt(150),
		LastEventSequence: lastSeq,
		ProcessedTxSet:    map[string]struct{}{"tx-1": {}, "tx-2": {}},
		CreatedAt:         time.Unix(0, 0),
	}))

	_, err = log.AppendToStream(context.Background(), "acc-1", []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(25), TransactionID: "tx-3"},
	})
	require.NoError(t, err)

	loader := aggregate.New(log, snaps, time.Second)

	acc := loader.Load(context.Background(), "acc-1")
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(175)))
	assert.True(t, acc.HasProcessed("tx-1"))
	assert.True(t, acc.HasProcessed("tx-3"))
}

func TestLoader_CachesAcrossCalls(t *testing.T) {
	t.Parallel()

	log := testsupport.NewFakeEventLog()
	snaps := testsupport.NewFakeSnapshotStore()
	loader := aggregate.New(log, snaps, time.Second)

	first := loader.Load(context.Background(), "acc-1")
	second := loader.Load(context.Background(), "acc-1")

	assert.Same(t, first, second)
}

func TestLoader_EvictForcesFreshLoad(t *testing.T) {
	t.Parallel()

	log := testsupport.NewFakeEventLog()
	snaps := testsupport.NewFakeSnapshotStore()
	loader := aggregate.New(log, snaps, time.Second)

	first := loader.Load(context.Background(), "acc-1")
	loader.Evict("acc-1")
	second := loader.Load(context.Background(), "acc-1")

	assert.NotSame(t, first, second)
}
