package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

func TestSnapshot_RestoreRoundTrip(t *testing.T) {
	t.Parallel()

	acc := domain.NewAccount("acc-1")
	acc.Apply(domain.AccountEvent{Type: domain.EventDeposit, Amount: decimal.NewFromInt(50), Sequence: 0, TransactionID: "tx-1"})
	acc.Apply(domain.AccountEvent{Type: domain.EventDeposit, Amount: decimal.NewFromInt(25), Sequence: 1, TransactionID: "tx-2"})

	snap := domain.SnapshotFromAccount(acc, acc.Version-1, time.Unix(0, 0))
	restored := snap.Restore()

	assert.True(t, restored.Balance.Equal(acc.Balance))
	assert.EqualValues(t, acc.Version, restored.Version)
	assert.True(t, restored.HasProcessed("tx-1"))
	assert.True(t, restored.HasProcessed("tx-2"))
}

func TestSnapshot_ProcessedTxSetMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	set := map[string]struct{}{"tx-1": {}, "tx-2": {}, "tx-3": {}}

	raw, err := domain.MarshalProcessedTxSet(set)
	require.NoError(t, err)

	decoded, err := domain.UnmarshalProcessedTxSet(raw)
	require.NoError(t, err)

	assert.Len(t, decoded, 3)
	for id := range set {
		_, ok := decoded[id]
		assert.True(t, ok, "expected %s to survive round trip", id)
	}
}

func TestSnapshot_UnmarshalEmptyIsEmptySet(t *testing.T) {
	t.Parallel()

	decoded, err := domain.UnmarshalProcessedTxSet(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestSnapshot_RestoreIsDefensiveCopy(t *testing.T) {
	t.Parallel()

	acc := domain.NewAccount("acc-1")
	acc.Apply(domain.AccountEvent{Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), Sequence: 0, TransactionID: "tx-1"})

	snap := domain.SnapshotFromAccount(acc, 0, time.Unix(0, 0))
	acc.Apply(domain.AccountEvent{Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), Sequence: 1, TransactionID: "tx-2"})

	assert.False(t, snap.Restore().HasProcessed("tx-2"))
}
