package saga_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
	"github.com/LerianStudio/ledgercore/internal/saga"
	"github.com/LerianStudio/ledgercore/internal/testsupport"
)

func newTestLogger(t *testing.T) obs.Logger {
	t.Helper()

	logger, err := obs.NewZapLogger("error")
	require.NoError(t, err)

	return logger
}

// testHarness wires a Coordinator to an in-memory log and a command bus
// that records every published command, and drives Run in the background
// for the lifetime of one test.
type testHarness struct {
	log         *testsupport.FakeEventLog
	idempotency *testsupport.FakeIdempotencyStore
	checkpoints *testsupport.FakeCheckpointStore

	mu        sync.Mutex
	published []domain.AccountEvent
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		log:         testsupport.NewFakeEventLog(),
		idempotency: testsupport.NewFakeIdempotencyStore(),
		checkpoints: testsupport.NewFakeCheckpointStore(),
	}

	bus := &testsupport.FakeCommandBus{Sink: func(_ context.Context, events []domain.AccountEvent) ([]domain.AccountEvent, error) {
		h.mu.Lock()
		h.published = append(h.published, events...)
		h.mu.Unlock()

		return events, nil
	}}

	c := saga.New(h.log, h.idempotency, h.checkpoints, bus, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return h
}

func (h *testHarness) publishedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.published)
}

func (h *testHarness) last() domain.AccountEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.published[len(h.published)-1]
}

func (h *testHarness) append(t *testing.T, evt domain.AccountEvent) {
	t.Helper()

	_, err := h.log.AppendToStream(context.Background(), evt.AccountID, []domain.AccountEvent{evt})
	require.NoError(t, err)
}

func TestCoordinator_TransferWithdrawEmitsPhase2Deposit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	h.append(t, domain.AccountEvent{
		AccountID: "acc-a", TargetAccountID: "acc-b", Type: domain.EventWithdraw,
		Amount: decimal.NewFromInt(50), TransactionID: "tx-1",
	})

	require.Eventually(t, func() bool { return h.publishedCount() == 1 }, time.Second, time.Millisecond)

	deposit := h.last()
	assert.Equal(t, domain.EventDeposit, deposit.Type)
	assert.Equal(t, "acc-b", deposit.AccountID)
	assert.Equal(t, "acc-a", deposit.TargetAccountID)
	assert.Equal(t, domain.DescriptionTransferDeposit, deposit.Description)

	require.Eventually(t, func() bool {
		stages, err := h.idempotency.FindStagesByTransactionID(context.Background(), "tx-1")
		return err == nil && len(stages) == 1 && stages[0].Step == domain.StepInit
	}, time.Second, time.Millisecond)
}

func TestCoordinator_FailedTransferDepositEmitsCompensation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	h.append(t, domain.AccountEvent{
		AccountID: "acc-b", TargetAccountID: "acc-a", Type: domain.EventFail,
		Amount: decimal.NewFromInt(50), TransactionID: "tx-1", Description: domain.DescriptionTransferDeposit,
	})

	require.Eventually(t, func() bool { return h.publishedCount() == 1 }, time.Second, time.Millisecond)

	refund := h.last()
	assert.Equal(t, "acc-a", refund.AccountID)
	assert.Equal(t, domain.DescriptionCompensation, refund.Description)
}

func TestCoordinator_FailedTransferDepositWithoutTargetIsAbandoned(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	h.append(t, domain.AccountEvent{
		AccountID: "acc-b", Type: domain.EventFail, Amount: decimal.NewFromInt(50),
		TransactionID: "tx-1", Description: domain.DescriptionTransferDeposit,
	})

	// Wait for the checkpoint to advance past this event (proof it was
	// observed and handled) without ever publishing a compensation.
	require.Eventually(t, func() bool {
		_, ok, err := h.checkpoints.Load(context.Background(), saga.CheckpointName)
		return err == nil && ok
	}, time.Second, time.Millisecond)

	assert.Zero(t, h.publishedCount())
}

func TestCoordinator_CompletedTransferDepositReservesCompleteStep(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	h.append(t, domain.AccountEvent{
		AccountID: "acc-b", Type: domain.EventDeposit, Amount: decimal.NewFromInt(50),
		TransactionID: "tx-1", Description: domain.DescriptionTransferDeposit,
	})

	require.Eventually(t, func() bool {
		stages, err := h.idempotency.FindStagesByTransactionID(context.Background(), "tx-1")
		return err == nil && len(stages) == 1 && stages[0].Step == domain.StepComplete
	}, time.Second, time.Millisecond)

	assert.Zero(t, h.publishedCount())
}

func TestCoordinator_SagaSilenceSentinelSkipsWithoutReservation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	h.append(t, domain.AccountEvent{
		AccountID: "acc-a", TargetAccountID: "acc-b", Type: domain.EventWithdraw,
		Amount: decimal.NewFromInt(50), TransactionID: "tx-1", Description: domain.DescriptionSagaSilence,
	})

	require.Eventually(t, func() bool {
		_, ok, err := h.checkpoints.Load(context.Background(), saga.CheckpointName)
		return err == nil && ok
	}, time.Second, time.Millisecond)

	stages, err := h.idempotency.FindStagesByTransactionID(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Empty(t, stages)
	assert.Zero(t, h.publishedCount())
}

func TestCoordinator_DuplicateTransferWithdrawIsIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	evt := domain.AccountEvent{
		AccountID: "acc-a", TargetAccountID: "acc-b", Type: domain.EventWithdraw,
		Amount: decimal.NewFromInt(50), TransactionID: "tx-1",
	}

	h.append(t, evt)
	require.Eventually(t, func() bool { return h.publishedCount() == 1 }, time.Second, time.Millisecond)

	h.append(t, evt)

	// Give the subscriber a chance to observe the duplicate; it must not
	// publish a second phase-2 deposit.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.publishedCount())
}
