// Command ledgerd hosts the ring ingress loop, the Saga, the Projector and
// the Watcher as independent goroutines inside one process, composed via
// internal/platform.Launcher exactly as the teacher composes its
// transaction/onboarding modules in components/ledger/internal/bootstrap.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/LerianStudio/ledgercore/internal/aggregate"
	busrabbitmq "github.com/LerianStudio/ledgercore/internal/bus/rabbitmq"
	"github.com/LerianStudio/ledgercore/internal/config"
	"github.com/LerianStudio/ledgercore/internal/eventlog/mongostore"
	"github.com/LerianStudio/ledgercore/internal/obs"
	"github.com/LerianStudio/ledgercore/internal/platform"
	"github.com/LerianStudio/ledgercore/internal/projector"
	"github.com/LerianStudio/ledgercore/internal/ring"
	"github.com/LerianStudio/ledgercore/internal/saga"
	"github.com/LerianStudio/ledgercore/internal/snapshot"
	storepostgres "github.com/LerianStudio/ledgercore/internal/store/postgres"
	"github.com/LerianStudio/ledgercore/internal/watcher"
	"github.com/LerianStudio/ledgercore/internal/writeside"

	realclock "github.com/LerianStudio/ledgercore/internal/clock"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := obs.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	telemetry := &obs.Telemetry{
		ServiceName: cfg.OtelServiceName,
		Endpoint:    cfg.OtelEndpoint,
		Enabled:     cfg.OtelEnabled,
	}

	ctx := obs.ContextWithLogger(context.Background(), logger)

	if err := telemetry.Init(ctx); err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer telemetry.Shutdown(ctx) //nolint:errcheck

	mongoConn := &mongostore.Connection{URI: cfg.MongoURI, Database: cfg.MongoDatabase, Logger: logger}
	eventLog := mongostore.New(mongoConn)

	pgConn := &storepostgres.Connection{
		ConnectionStringPrimary: cfg.PostgresDSN,
		ConnectionStringReplica: replicaOrPrimary(cfg),
		DatabaseName:            "ledger",
		Logger:                  logger,
	}

	readModelStore := storepostgres.NewReadModelStore(pgConn)
	snapshotStore := storepostgres.NewSnapshotStore(pgConn)
	idempotencyStore := storepostgres.NewIdempotencyStore(pgConn)
	checkpointStore := storepostgres.NewCheckpointStore(pgConn)

	// No redis client here: the persistent-subscription retry counter
	// (internal/bus/rabbitmq.Subscription) is only exercised by genuinely
	// external fact consumers — see cmd/ledger-notifier — not by this
	// process, whose Saga/Projector/Watcher read the log's catch-up feed
	// directly (SPEC_FULL.md §2 "keep acyclic").
	rmqConn := &busrabbitmq.Connection{URL: cfg.RabbitMQURL, Logger: logger}
	commandBus := busrabbitmq.NewCommandBus(rmqConn)
	factPublisher := busrabbitmq.NewFactPublisher(rmqConn)

	clk := &realclock.Real{}

	loader := aggregate.New(eventLog, snapshotStore, cfg.AggregateReadTimeout)
	janitor := snapshot.New(loader, snapshotStore, cfg.SnapshotRetain, clk)

	journalFn := writeside.WithFactFanout(writeside.JournalStage(eventLog), factPublisher)

	pipeline := ring.New(ring.Config{
		Capacity:      cfg.RingCapacity,
		SnapshotEvery: cfg.SnapshotThreshold,
		Apply:         writeside.ApplyStage(loader),
		Journal:       journalFn,
		ReadModel:     writeside.ReadModelStage(readModelStore),
		SnapshotTick:  janitor.OnTick,
		Logger:        logger,
	})

	ingress := busrabbitmq.NewIngress(rmqConn, pipeline, logger)
	sagaCoordinator := saga.New(eventLog, idempotencyStore, checkpointStore, commandBus, logger)
	proj := projector.New(eventLog, readModelStore, checkpointStore, cfg.ProjectorBatchSize, cfg.ProjectorFlushPeriod, logger)
	watch := watcher.New(idempotencyStore, eventLog, commandBus, clk, cfg.WatcherPeriod, cfg.WatcherTimeout, cfg.WatcherScanDepth, logger)

	launcher := platform.NewLauncher(logger)
	launcher.
		Add("ring", pipelineSubsystem{pipeline}).
		Add("command-ingress", ingress).
		Add("saga", sagaCoordinator).
		Add("projector", proj).
		Add("watcher", watch)

	return launcher.Run(ctx)
}

// pipelineSubsystem adapts *ring.Pipeline's RunStages method to
// platform.Subsystem without requiring package ring to import platform.
type pipelineSubsystem struct {
	p *ring.Pipeline
}

func (s pipelineSubsystem) Run(ctx context.Context) error {
	return s.p.RunStages(ctx)
}

func replicaOrPrimary(cfg *config.Config) string {
	if cfg.PostgresReplicaDSN == "" {
		return cfg.PostgresDSN
	}

	return cfg.PostgresReplicaDSN
}
