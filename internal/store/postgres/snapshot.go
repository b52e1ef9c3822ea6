package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

const snapshotsTable = "account_snapshots"

// SnapshotStore implements ports.SnapshotStore against
// `account_snapshots` (spec.md §3/§6).
type SnapshotStore struct {
	conn *Connection
}

// NewSnapshotStore binds a SnapshotStore to conn.
func NewSnapshotStore(conn *Connection) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Save inserts a new snapshot row. Rows are never updated in place: the
// Janitor's retention pruning (Prune) is what keeps the table bounded,
// not an upsert (spec.md §4.3).
func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return err
	}

	processed, err := domain.MarshalProcessedTxSet(snap.ProcessedTxSet)
	if err != nil {
		return fmt.Errorf("marshal processed set: %w", err)
	}

	query, args, err := psql.Insert(snapshotsTable).
		Columns("account_id", "balance", "last_event_sequence", "processed_transactions", "created_at").
		Values(snap.AccountID, snap.Balance, snap.LastEventSequence, processed, snap.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save snapshot: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec save snapshot: %w", err)
	}

	return nil
}

// Latest returns the snapshot with the highest LastEventSequence for
// accountID.
func (s *SnapshotStore) Latest(ctx context.Context, accountID string) (domain.Snapshot, bool, error) {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return domain.Snapshot{}, false, err
	}

	query, args, err := psql.Select("account_id", "balance", "last_event_sequence", "processed_transactions", "created_at").
		From(snapshotsTable).
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("last_event_sequence DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("build latest snapshot: %w", err)
	}

	var (
		snap      domain.Snapshot
		processed []byte
	)

	err = db.QueryRowContext(ctx, query, args...).Scan(
		&snap.AccountID, &snap.Balance, &snap.LastEventSequence, &processed, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, false, nil
	}

	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("exec latest snapshot: %w", err)
	}

	set, err := domain.UnmarshalProcessedTxSet(processed)
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("unmarshal processed set: %w", err)
	}

	snap.ProcessedTxSet = set

	return snap, true, nil
}

// Prune deletes all but the retainCount most recent snapshots for
// accountID, oldest first.
func (s *SnapshotStore) Prune(ctx context.Context, accountID string, retainCount int) error {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return err
	}

	query, args, err := psql.Delete(snapshotsTable).
		Where(sq.Eq{"account_id": accountID}).
		Where(sq.Expr(`last_event_sequence NOT IN (
			SELECT last_event_sequence FROM `+snapshotsTable+`
			WHERE account_id = ?
			ORDER BY last_event_sequence DESC
			LIMIT ?
		)`, accountID, retainCount)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build prune snapshot: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec prune snapshot: %w", err)
	}

	return nil
}
