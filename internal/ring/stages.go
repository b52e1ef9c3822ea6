package ring

import (
	"context"

	"github.com/LerianStudio/ledgercore/internal/domain"
	"github.com/LerianStudio/ledgercore/internal/obs"
)

// RunApplyStage runs the apply consumer loop: one consumer, first in
// dependency order, per spec.md §4.1 stage 1.
func (p *Pipeline) RunApplyStage(ctx context.Context) error {
	var next int64

	for {
		if !p.waitFor(ctx, &p.published, next) {
			return ctx.Err()
		}

		evt, _ := p.slotAt(uint64(next))
		result := p.apply(ctx, evt)

		p.mu.Lock()
		p.slots[uint64(next)&p.mask].Event = result
		p.applyDone = next
		p.mu.Unlock()
		p.cond.Broadcast()

		next++
	}
}

// RunJournalStage runs the journal consumer loop: buffers events until
// EndOfBatch, then appends synchronously and waits for durability
// (spec.md §4.1 stage 2). On any append error it halts the pipeline.
func (p *Pipeline) RunJournalStage(ctx context.Context) error {
	var next int64

	var batch []domain.AccountEvent

	for {
		if !p.waitFor(ctx, &p.applyDone, next) {
			return ctx.Err()
		}

		evt, eob := p.slotAt(uint64(next))
		batch = append(batch, evt)

		if eob {
			if err := p.journal(ctx, batch); err != nil {
				obs.FromContext(ctx).Error("journal durability failure, halting pipeline", "error", err.Error())
				p.Close()

				return err
			}

			batch = batch[:0]
		}

		p.mu.Lock()
		p.journalDone = next
		p.mu.Unlock()
		p.cond.Broadcast()

		next++
	}
}

// RunReadModelStage collects events until EndOfBatch and then hands the
// batch to ReadModelFunc, which filters FAIL events and applies the rest
// (spec.md §4.1 stage 3).
func (p *Pipeline) RunReadModelStage(ctx context.Context) error {
	var next int64

	var batch []domain.AccountEvent

	for {
		if !p.waitFor(ctx, &p.journalDone, next) {
			return ctx.Err()
		}

		evt, eob := p.slotAt(uint64(next))
		batch = append(batch, evt)

		if eob {
			p.readModel(ctx, batch)
			batch = batch[:0]
		}

		p.mu.Lock()
		p.readModelDone = next
		p.mu.Unlock()
		p.cond.Broadcast()

		next++
	}
}

// RunSnapshotTickStage runs parallel to the read-model stage, sharing the
// journal barrier (spec.md §4.1 stage 4): every N events, for non-FAIL
// events, it triggers the Janitor.
func (p *Pipeline) RunSnapshotTickStage(ctx context.Context) error {
	var next int64

	for {
		if !p.waitFor(ctx, &p.journalDone, next) {
			return ctx.Err()
		}

		evt, _ := p.slotAt(uint64(next))

		if p.snapshotTick != nil && p.snapshotEvery > 0 && !evt.IsFail() && (evt.Sequence+1)%uint64(p.snapshotEvery) == 0 {
			p.snapshotTick(ctx, evt)
		}

		p.mu.Lock()
		p.snapshotDone = next
		p.mu.Unlock()
		p.cond.Broadcast()

		next++
	}
}
