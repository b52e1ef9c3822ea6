package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

const processedTransactionsTable = "processed_transactions"

// pgUniqueViolation is the SQLSTATE Postgres raises on a unique constraint
// conflict, the signal TryMarkAsProcessed treats as "already processed"
// rather than a hard failure.
const pgUniqueViolation = "23505"

// IdempotencyStore implements ports.IdempotencyStore against
// `processed_transactions` (spec.md §3/§4.7/§6).
type IdempotencyStore struct {
	conn *Connection
}

// NewIdempotencyStore binds an IdempotencyStore to conn.
func NewIdempotencyStore(conn *Connection) *IdempotencyStore {
	return &IdempotencyStore{conn: conn}
}

// TryMarkAsProcessed attempts to insert the (transactionID, step) row. A
// unique-constraint conflict means a concurrent or earlier delivery
// already claimed the step: this is reported as (false, nil), never as an
// error, since it is the expected steady-state outcome of at-least-once
// delivery (spec.md §4.7).
func (s *IdempotencyStore) TryMarkAsProcessed(ctx context.Context, transactionID string, step domain.Step) (bool, error) {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return false, err
	}

	query, args, err := psql.Insert(processedTransactionsTable).
		Columns("transaction_id", "step", "processed_at").
		Values(transactionID, string(step), sq.Expr("now()")).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build try-mark: %w", err)
	}

	_, err = db.ExecContext(ctx, query, args...)
	if err == nil {
		return true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return false, nil
	}

	return false, fmt.Errorf("exec try-mark: %w", err)
}

// FindStagesByTransactionID returns every step recorded for
// transactionID, in no particular order.
func (s *IdempotencyStore) FindStagesByTransactionID(ctx context.Context, transactionID string) ([]domain.IdempotencyRecord, error) {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	query, args, err := psql.Select("transaction_id", "step", "processed_at").
		From(processedTransactionsTable).
		Where(sq.Eq{"transaction_id": transactionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find stages: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec find stages: %w", err)
	}
	defer rows.Close()

	var out []domain.IdempotencyRecord

	for rows.Next() {
		var (
			rec  domain.IdempotencyRecord
			step string
		)

		if err := rows.Scan(&rec.TransactionID, &step, &rec.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}

		rec.Step = domain.Step(step)
		out = append(out, rec)
	}

	return out, rows.Err()
}

// FindTimeoutTransactions returns the distinct transaction ids whose only
// recorded step is INIT and whose processed_at is older than olderThan —
// the Watcher's orphan candidate set (spec.md §4.6).
func (s *IdempotencyStore) FindTimeoutTransactions(ctx context.Context, olderThan time.Duration) ([]string, error) {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	query, args, err := psql.Select("transaction_id").
		From(processedTransactionsTable+" init").
		Where(sq.Eq{"init.step": string(domain.StepInit)}).
		Where(sq.Lt{"init.processed_at": sq.Expr("now() - ?::interval", fmt.Sprintf("%d seconds", int64(olderThan.Seconds())))}).
		Where(sq.Expr(`NOT EXISTS (
			SELECT 1 FROM `+processedTransactionsTable+` later
			WHERE later.transaction_id = init.transaction_id
			AND later.step IN (?, ?)
		)`, string(domain.StepCompensation), string(domain.StepComplete))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find timeouts: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec find timeouts: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan timeout id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DeleteOldRecords prunes rows older than olderThan, keeping the table
// from growing unbounded once a transaction has long since resolved.
func (s *IdempotencyStore) DeleteOldRecords(ctx context.Context, olderThan time.Duration) error {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return err
	}

	query, args, err := psql.Delete(processedTransactionsTable).
		Where(sq.Lt{"processed_at": sq.Expr("now() - ?::interval", fmt.Sprintf("%d seconds", int64(olderThan.Seconds())))}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete old records: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec delete old records: %w", err)
	}

	return nil
}
