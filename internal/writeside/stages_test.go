package writeside_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/ledgercore/internal/aggregate"
	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/testsupport"
	"github.com/LerianStudio/ledgercore/internal/writeside"
)

func TestApplyStage_OverdraftRewritesToFail(t *testing.T) {
	t.Parallel()

	log := testsupport.NewFakeEventLog()
	snaps := testsupport.NewFakeSnapshotStore()
	loader := aggregate.New(log, snaps, time.Second)

	apply := writeside.ApplyStage(loader)

	result := apply(context.Background(), domain.AccountEvent{
		AccountID: "acc-1", Type: domain.EventWithdraw, Amount: decimal.NewFromInt(10), TransactionID: "tx-1",
	})

	assert.Equal(t, domain.EventFail, result.Type)
}

func TestApplyStage_SuccessfulDepositKeepsType(t *testing.T) {
	t.Parallel()

	log := testsupport.NewFakeEventLog()
	snaps := testsupport.NewFakeSnapshotStore()
	loader := aggregate.New(log, snaps, time.Second)

	apply := writeside.ApplyStage(loader)

	result := apply(context.Background(), domain.AccountEvent{
		AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(10), TransactionID: "tx-1",
	})

	assert.Equal(t, domain.EventDeposit, result.Type)

	acc := loader.Load(context.Background(), "acc-1")
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(10)))
}

func TestJournalStage_GroupsByAccountAndAppends(t *testing.T) {
	t.Parallel()

	log := testsupport.NewFakeEventLog()
	journal := writeside.JournalStage(log)

	err := journal(context.Background(), []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), TransactionID: "tx-1"},
		{AccountID: "acc-2", Type: domain.EventDeposit, Amount: decimal.NewFromInt(2), TransactionID: "tx-2"},
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(3), TransactionID: "tx-3"},
	})
	require.NoError(t, err)

	stream1, err := log.ReadStreamFrom(context.Background(), "acc-1", 0)
	require.NoError(t, err)
	assert.Len(t, stream1, 2)

	stream2, err := log.ReadStreamFrom(context.Background(), "acc-2", 0)
	require.NoError(t, err)
	assert.Len(t, stream2, 1)
}

func TestJournalStage_AppendFailureWrapsDurabilityError(t *testing.T) {
	t.Parallel()

	boom := errors.New("append failed")

	journal := writeside.JournalStage(stubEventLog{err: boom})

	err := journal(context.Background(), []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), TransactionID: "tx-1"},
	})

	var durabilityErr *domain.DurabilityError
	require.ErrorAs(t, err, &durabilityErr)
	assert.ErrorIs(t, err, boom)
}

// stubEventLog implements ports.EventLog with AppendToStream always failing.
type stubEventLog struct {
	err error
}

func (s stubEventLog) AppendToStream(context.Context, string, []domain.AccountEvent) ([]domain.AccountEvent, error) {
	return nil, s.err
}

func (s stubEventLog) ReadStreamFrom(context.Context, string, uint64) ([]domain.AccountEvent, error) {
	return nil, nil
}

func (s stubEventLog) ReadAllBackward(context.Context, int) ([]domain.AccountEvent, error) {
	return nil, nil
}

func (s stubEventLog) Subscribe(context.Context, domain.Position, func(domain.AccountEvent) error) error {
	return nil
}

func TestReadModelStage_FailEventsAreFirewalled(t *testing.T) {
	t.Parallel()

	store := testsupport.NewFakeReadModelStore()
	readModel := writeside.ReadModelStage(store)

	readModel(context.Background(), []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventFail, Amount: decimal.NewFromInt(999), TransactionID: "tx-1"},
	})

	_, ok, err := store.Get(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadModelStage_SumsDepositsWithinBatch(t *testing.T) {
	t.Parallel()

	store := testsupport.NewFakeReadModelStore()
	readModel := writeside.ReadModelStage(store)

	readModel(context.Background(), []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(10), TransactionID: "tx-1"},
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(15), TransactionID: "tx-2"},
	})

	row, ok, err := store.Get(context.Background(), "acc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, row.Balance.Equal(decimal.NewFromInt(25)))
}

func TestWithFactFanout_PublishesOnlyAfterDurableAppend(t *testing.T) {
	t.Parallel()

	var published []domain.AccountEvent

	pub := publishFunc(func(_ context.Context, evt domain.AccountEvent) error {
		published = append(published, evt)

		return nil
	})

	next := func(context.Context, []domain.AccountEvent) error { return nil }
	wrapped := writeside.WithFactFanout(next, pub)

	err := wrapped(context.Background(), []domain.AccountEvent{
		{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(1), TransactionID: "tx-1"},
	})
	require.NoError(t, err)
	assert.Len(t, published, 1)
}

func TestWithFactFanout_NeverCalledWhenJournalFails(t *testing.T) {
	t.Parallel()

	var calls int

	pub := publishFunc(func(context.Context, domain.AccountEvent) error {
		calls++

		return nil
	})

	boom := errors.New("durability failure")
	next := func(context.Context, []domain.AccountEvent) error { return boom }
	wrapped := writeside.WithFactFanout(next, pub)

	err := wrapped(context.Background(), []domain.AccountEvent{{AccountID: "acc-1"}})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, calls)
}

// publishFunc adapts a function literal to ports.FactPublisher.
type publishFunc func(ctx context.Context, evt domain.AccountEvent) error

func (f publishFunc) PublishFact(ctx context.Context, evt domain.AccountEvent) error {
	return f(ctx, evt)
}
