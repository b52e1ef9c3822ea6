// Package platform hosts the process-composition primitive ledgerd uses to
// run the ring ingress loop, the Saga, the Projector, the Watcher and the
// Janitor trigger as independent long-lived goroutines inside one binary —
// adapted from the teacher's common/app.go Launcher/App pair, reworked
// around context cancellation instead of a bare WaitGroup so a single
// subsystem failure can fast-fail the whole node.
package platform

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/LerianStudio/ledgercore/internal/obs"
)

// Subsystem is one independently-running piece of the node. Run must block
// until ctx is cancelled or the subsystem fails unrecoverably.
type Subsystem interface {
	Run(ctx context.Context) error
}

// Launcher runs a fixed set of named subsystems and waits for all of them
// to return, cancelling every subsystem's context the moment one of them
// returns a non-nil error or the process receives SIGINT/SIGTERM.
type Launcher struct {
	Logger obs.Logger

	mu         sync.Mutex
	subsystems map[string]Subsystem
}

// NewLauncher builds an empty Launcher.
func NewLauncher(logger obs.Logger) *Launcher {
	return &Launcher{Logger: logger, subsystems: make(map[string]Subsystem)}
}

// Add registers a named subsystem. Panics on duplicate names, since that is
// always a wiring bug caught at startup, never at runtime.
func (l *Launcher) Add(name string, s Subsystem) *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.subsystems[name]; exists {
		panic(fmt.Sprintf("platform: subsystem %q already registered", name))
	}

	l.subsystems[name] = s

	return l
}

// Run starts every registered subsystem and blocks until all of them have
// returned. The context passed to the subsystems (derived from parent) is
// cancelled on the first subsystem error or on SIGINT/SIGTERM, whichever
// comes first.
func (l *Launcher) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigCh)

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		firstErr error
	)

	l.mu.Lock()
	names := make([]string, 0, len(l.subsystems))
	for name := range l.subsystems {
		names = append(names, name)
	}
	l.mu.Unlock()

	l.Logger.Info("launcher starting", "subsystem_count", len(names))

	for _, name := range names {
		name, sub := name, l.subsystems[name]

		wg.Add(1)

		go func() {
			defer wg.Done()

			l.Logger.Info("subsystem starting", "name", name)

			if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
				l.Logger.Error("subsystem failed", "name", name, "error", err.Error())
				errOnce.Do(func() { firstErr = fmt.Errorf("subsystem %q: %w", name, err) })
				cancel()

				return
			}

			l.Logger.Info("subsystem stopped", "name", name)
		}()
	}

	select {
	case <-sigCh:
		l.Logger.Info("launcher received shutdown signal")
		cancel()
	case <-ctx.Done():
	}

	wg.Wait()

	return firstErr
}
