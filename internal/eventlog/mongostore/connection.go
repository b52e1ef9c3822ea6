// Package mongostore implements the EventLog port over MongoDB: one
// document per event, an account-scoped sequence for per-stream reads, a
// monotonically increasing global counter for the `$all` ordering, and
// change streams for catch-up subscriptions. Adapted from the teacher's
// common/mmongo.MongoConnection connection hub.
package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LerianStudio/ledgercore/internal/obs"
)

// Connection is a thin hub around a mongo.Client, matching the teacher's
// MongoConnection lazy-connect-on-first-use idiom.
type Connection struct {
	URI      string
	Database string
	Logger   obs.Logger

	client *mongo.Client
}

// Connect establishes and pings the client connection.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("connecting to mongo", "database", c.Database)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}

	c.client = client

	c.Logger.Info("connected to mongo")

	return nil
}

// DB returns the event log's database handle, connecting lazily if needed.
func (c *Connection) DB(ctx context.Context) (*mongo.Database, error) {
	if c.client == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.client.Database(c.Database), nil
}
