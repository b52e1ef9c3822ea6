// Package projector implements the at-least-once read-model projector
// spec.md §4.5 describes: a buffered catch-up subscription with a
// size trigger and a time trigger, a FAIL firewall, and additive
// deposit/withdraw application identical in shape to the ring's own
// read-model buffer stage (internal/writeside.ReadModelStage) — the two
// are independent observers of the same log per spec.md §9's acyclic rule,
// so the logic is duplicated rather than shared through an import that
// would couple them.
package projector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
	"github.com/LerianStudio/ledgercore/internal/ports"
)

// CheckpointName is the Projector's own named row, independent of the
// Saga's (spec.md §9 "keep acyclic").
const CheckpointName = "projector"

// Projector is the runtime: one catch-up subscription, one buffer, two
// flush triggers.
type Projector struct {
	log         ports.EventLog
	readModel   ports.ReadModelStore
	checkpoints ports.CheckpointStore
	logger      obs.Logger

	batchSize   int
	flushPeriod time.Duration

	mu     sync.Mutex
	buffer []domain.AccountEvent
}

// New builds a Projector.
func New(log ports.EventLog, readModel ports.ReadModelStore, checkpoints ports.CheckpointStore, batchSize int, flushPeriod time.Duration, logger obs.Logger) *Projector {
	return &Projector{
		log:         log,
		readModel:   readModel,
		checkpoints: checkpoints,
		logger:      logger,
		batchSize:   batchSize,
		flushPeriod: flushPeriod,
	}
}

// Run implements platform.Subsystem.
func (p *Projector) Run(ctx context.Context) error {
	from, _, err := p.checkpoints.Load(ctx, CheckpointName)
	if err != nil {
		return fmt.Errorf("load projector checkpoint: %w", err)
	}

	ticker := time.NewTicker(p.flushPeriod)
	defer ticker.Stop()

	tickCtx, stopTicks := context.WithCancel(ctx)
	defer stopTicks()

	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				p.mu.Lock()
				p.flushLocked(ctx)
				p.mu.Unlock()
			}
		}
	}()

	err = p.log.Subscribe(ctx, from, func(evt domain.AccountEvent) error {
		p.mu.Lock()
		defer p.mu.Unlock()

		p.buffer = append(p.buffer, evt)

		if len(p.buffer) >= p.batchSize {
			p.flushLocked(ctx)
		}

		return nil
	})

	stopTicks()
	<-done

	return err
}

// flushLocked applies the buffered batch and persists the checkpoint. The
// caller must hold p.mu.
func (p *Projector) flushLocked(ctx context.Context) {
	if len(p.buffer) == 0 {
		return
	}

	batch := p.buffer
	p.buffer = nil

	lastPosition := batch[len(batch)-1].GlobalPosition

	deposits := make(map[string]decimal.Decimal)
	withdraws := make(map[string]decimal.Decimal)

	failed := 0

	for _, evt := range batch {
		if evt.IsFail() {
			failed++

			continue
		}

		switch evt.Type {
		case domain.EventDeposit:
			deposits[evt.AccountID] = deposits[evt.AccountID].Add(evt.Amount)
		case domain.EventWithdraw:
			withdraws[evt.AccountID] = withdraws[evt.AccountID].Add(evt.Amount)
		}
	}

	if failed > 0 {
		p.logger.Info("projector firewalled FAIL events", "count", failed)
	}

	for accountID, amount := range deposits {
		if err := p.readModel.UpsertDeposit(ctx, accountID, amount); err != nil {
			p.logger.Error("projector deposit upsert failed", "account_id", accountID, "error", err.Error())
		}
	}

	for accountID, amount := range withdraws {
		rows, err := p.readModel.UpdateWithdraw(ctx, accountID, amount)
		if err != nil {
			p.logger.Error("projector withdraw update failed", "account_id", accountID, "error", err.Error())

			continue
		}

		if rows == 0 {
			p.logger.Warn("projector read-model/write-model divergence: zero rows affected", "account_id", accountID)
		}
	}

	if err := p.checkpoints.Save(ctx, CheckpointName, lastPosition); err != nil {
		p.logger.Error("projector checkpoint save failed", "error", err.Error())
	}
}
