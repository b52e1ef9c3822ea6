package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Checkpoint is a named subscriber's resumable position in the global fact
// stream (spec.md §3, Projector/Saga checkpoints). Name is the projector or
// saga name the row is keyed by.
type Checkpoint struct {
	Name     string
	Position Position
}

// ReadModelRow mirrors the accounts table spec.md §3/§6 describes: never
// reflects a FAIL fact, and a WITHDRAW never creates a row via INSERT (the
// Projector's strict UPDATE, spec.md §4.5 step 5).
type ReadModelRow struct {
	AccountID     string
	Balance       decimal.Decimal
	LastUpdatedAt time.Time
}
