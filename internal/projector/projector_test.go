package projector_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
	"github.com/LerianStudio/ledgercore/internal/projector"
	"github.com/LerianStudio/ledgercore/internal/testsupport"
)

func newTestLogger(t *testing.T) obs.Logger {
	t.Helper()

	logger, err := obs.NewZapLogger("error")
	require.NoError(t, err)

	return logger
}

type harness struct {
	log         *testsupport.FakeEventLog
	readModel   *testsupport.FakeReadModelStore
	checkpoints *testsupport.FakeCheckpointStore
}

func newHarness(t *testing.T, batchSize int, flushPeriod time.Duration) *harness {
	t.Helper()

	h := &harness{
		log:         testsupport.NewFakeEventLog(),
		readModel:   testsupport.NewFakeReadModelStore(),
		checkpoints: testsupport.NewFakeCheckpointStore(),
	}

	p := projector.New(h.log, h.readModel, h.checkpoints, batchSize, flushPeriod, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return h
}

func (h *harness) append(t *testing.T, evt domain.AccountEvent) {
	t.Helper()

	_, err := h.log.AppendToStream(context.Background(), evt.AccountID, []domain.AccountEvent{evt})
	require.NoError(t, err)
}

func TestProjector_BatchSizeTriggersFlush(t *testing.T) {
	t.Parallel()

	// A long flush period so only the size trigger can cause the flush
	// this test asserts on.
	h := newHarness(t, 2, time.Hour)

	h.append(t, domain.AccountEvent{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(10), TransactionID: "tx-1"})
	h.append(t, domain.AccountEvent{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(5), TransactionID: "tx-2"})

	require.Eventually(t, func() bool {
		row, ok, err := h.readModel.Get(context.Background(), "acc-1")
		return err == nil && ok && row.Balance.Equal(decimal.NewFromInt(15))
	}, time.Second, time.Millisecond)
}

func TestProjector_TimeTriggerFlushesPartialBatch(t *testing.T) {
	t.Parallel()

	// A batch size far larger than one event, so only the ticker can
	// flush it.
	h := newHarness(t, 1000, 10*time.Millisecond)

	h.append(t, domain.AccountEvent{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(42), TransactionID: "tx-1"})

	require.Eventually(t, func() bool {
		row, ok, err := h.readModel.Get(context.Background(), "acc-1")
		return err == nil && ok && row.Balance.Equal(decimal.NewFromInt(42))
	}, time.Second, time.Millisecond)
}

func TestProjector_FailEventsAreFirewalledFromReadModel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, time.Hour)

	h.append(t, domain.AccountEvent{
		AccountID: "acc-1", Type: domain.EventFail, Amount: decimal.NewFromInt(999), TransactionID: "tx-1",
	})

	// Give the subscriber a chance to observe and discard the FAIL event.
	time.Sleep(50 * time.Millisecond)

	_, ok, err := h.readModel.Get(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProjector_WithdrawDecrementsBalance(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, time.Hour)

	h.append(t, domain.AccountEvent{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(100), TransactionID: "tx-1"})

	require.Eventually(t, func() bool {
		_, ok, err := h.readModel.Get(context.Background(), "acc-1")
		return err == nil && ok
	}, time.Second, time.Millisecond)

	h.append(t, domain.AccountEvent{AccountID: "acc-1", Type: domain.EventWithdraw, Amount: decimal.NewFromInt(30), TransactionID: "tx-2"})
	h.append(t, domain.AccountEvent{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(0), TransactionID: "tx-3"})

	require.Eventually(t, func() bool {
		row, ok, err := h.readModel.Get(context.Background(), "acc-1")
		return err == nil && ok && row.Balance.Equal(decimal.NewFromInt(70))
	}, time.Second, time.Millisecond)
}

func TestProjector_CheckpointAdvancesAfterFlush(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, time.Hour)

	h.append(t, domain.AccountEvent{AccountID: "acc-1", Type: domain.EventDeposit, Amount: decimal.NewFromInt(5), TransactionID: "tx-1"})

	require.Eventually(t, func() bool {
		pos, ok, err := h.checkpoints.Load(context.Background(), projector.CheckpointName)
		return err == nil && ok && pos.Commit == 1
	}, time.Second, time.Millisecond)
}
