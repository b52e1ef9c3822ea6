package ring

import (
	"context"
	"errors"
	"sync"
)

// RunStages starts the four consumer stages and blocks until ctx is
// cancelled or one of them returns a non-nil error (journal durability
// failure), satisfying internal/platform.Subsystem. It is the single
// attachment point ledgerd uses to host the ring.
func (p *Pipeline) RunStages(ctx context.Context) error {
	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstErr error
	)

	runners := []func(context.Context) error{
		p.RunApplyStage,
		p.RunJournalStage,
		p.RunReadModelStage,
		p.RunSnapshotTickStage,
	}

	wg.Add(len(runners))

	for _, run := range runners {
		run := run

		go func() {
			defer wg.Done()

			if err := run(stageCtx); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()

				cancel()
				p.Close()
			}
		}()
	}

	<-stageCtx.Done()
	p.Close()
	wg.Wait()

	return firstErr
}
