// Package postgres implements the ReadModelStore, SnapshotStore,
// IdempotencyStore and CheckpointStore ports over a single Postgres
// schema, squirrel-built like the teacher's account repository. Adapted
// from the teacher's common/mpostgres connection hub: primary/replica
// split via dbresolver, migrations applied on connect.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/LerianStudio/ledgercore/internal/obs"
)

// Connection is a hub around a primary/replica Postgres pair.
type Connection struct {
	ConnectionStringPrimary string
	ConnectionStringReplica string
	DatabaseName            string
	MigrationsPath          string
	Logger                  obs.Logger

	db        *dbresolver.DB
	connected bool
}

// Connect opens both pools, applies pending migrations against the
// primary, and pings the resolver.
func (c *Connection) Connect() error {
	c.Logger.Info("connecting to postgres", "database", c.DatabaseName)

	primary, err := sql.Open("pgx", c.ConnectionStringPrimary)
	if err != nil {
		return fmt.Errorf("open primary: %w", err)
	}

	replica, err := sql.Open("pgx", c.ConnectionStringReplica)
	if err != nil {
		return fmt.Errorf("open replica: %w", err)
	}

	resolver := dbresolver.New(
		dbresolver.WithPrimaryDBs(primary),
		dbresolver.WithReplicaDBs(replica),
		dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB))

	if c.MigrationsPath != "" {
		if err := c.migrate(primary); err != nil {
			return err
		}
	}

	if err := resolver.Ping(); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	c.db = &resolver
	c.connected = true

	c.Logger.Info("connected to postgres")

	return nil
}

func (c *Connection) migrate(primary *sql.DB) error {
	abs, err := filepath.Abs(c.MigrationsPath)
	if err != nil {
		return fmt.Errorf("resolve migrations path: %w", err)
	}

	fileURL, err := url.Parse(filepath.ToSlash(abs))
	if err != nil {
		return fmt.Errorf("parse migrations url: %w", err)
	}

	fileURL.Scheme = "file"

	driver, err := postgres.WithInstance(primary, &postgres.Config{
		MultiStatementEnabled: true,
		DatabaseName:          c.DatabaseName,
		SchemaName:            "public",
	})
	if err != nil {
		return fmt.Errorf("build migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(fileURL.String(), c.DatabaseName, driver)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// DB returns the resolver, connecting lazily on first use.
func (c *Connection) DB(_ context.Context) (dbresolver.DB, error) {
	if !c.connected {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}

	return *c.db, nil
}
