package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

const checkpointsTable = "checkpoints"

// CheckpointStore implements ports.CheckpointStore against `checkpoints`,
// one row per named subscriber (the Projector, the Saga's choreography
// listener).
type CheckpointStore struct {
	conn *Connection
}

// NewCheckpointStore binds a CheckpointStore to conn.
func NewCheckpointStore(conn *Connection) *CheckpointStore {
	return &CheckpointStore{conn: conn}
}

// Save upserts name's resume position.
func (s *CheckpointStore) Save(ctx context.Context, name string, pos domain.Position) error {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return err
	}

	query, args, err := psql.Insert(checkpointsTable).
		Columns("name", "position_commit", "position_prepare").
		Values(name, pos.Commit, pos.Prepare).
		Suffix("ON CONFLICT (name) DO UPDATE SET position_commit = EXCLUDED.position_commit, position_prepare = EXCLUDED.position_prepare").
		ToSql()
	if err != nil {
		return fmt.Errorf("build save checkpoint: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec save checkpoint: %w", err)
	}

	return nil
}

// Load returns name's last saved position, or false if none exists yet
// (a fresh subscriber that must replay from the start of the stream).
func (s *CheckpointStore) Load(ctx context.Context, name string) (domain.Position, bool, error) {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return domain.Position{}, false, err
	}

	query, args, err := psql.Select("position_commit", "position_prepare").
		From(checkpointsTable).
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("build load checkpoint: %w", err)
	}

	var pos domain.Position

	err = db.QueryRowContext(ctx, query, args...).Scan(&pos.Commit, &pos.Prepare)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, false, nil
	}

	if err != nil {
		return domain.Position{}, false, fmt.Errorf("exec load checkpoint: %w", err)
	}

	return pos, true, nil
}
