package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

const accountsTable = "accounts"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ReadModelStore implements ports.ReadModelStore against the `accounts`
// table (spec.md §3/§6), squirrel-built like the teacher's account
// repository.
type ReadModelStore struct {
	conn *Connection
}

// NewReadModelStore binds a ReadModelStore to conn.
func NewReadModelStore(conn *Connection) *ReadModelStore {
	return &ReadModelStore{conn: conn}
}

// UpsertDeposit adds amount to the account's balance, inserting a
// zero-balance row first if this is the account's first-ever deposit
// (spec.md §4.5 step 4 — deposits are the only event that may create a
// read-model row).
func (s *ReadModelStore) UpsertDeposit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return err
	}

	query, args, err := psql.Insert(accountsTable).
		Columns("account_id", "balance", "last_updated_at").
		Values(accountID, amount, sq.Expr("now()")).
		Suffix("ON CONFLICT (account_id) DO UPDATE SET balance = "+accountsTable+".balance + EXCLUDED.balance, last_updated_at = now()").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert deposit: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec upsert deposit: %w", err)
	}

	return nil
}

// UpdateWithdraw subtracts amount from an existing balance row. It never
// inserts: a withdraw against an account with no read-model row yet
// affects zero rows, which the caller must treat as a divergence warning,
// not an error (spec.md §4.5 step 5).
func (s *ReadModelStore) UpdateWithdraw(ctx context.Context, accountID string, amount decimal.Decimal) (int64, error) {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return 0, err
	}

	query, args, err := psql.Update(accountsTable).
		Set("balance", sq.Expr("balance - ?", amount)).
		Set("last_updated_at", sq.Expr("now()")).
		Where(sq.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update withdraw: %w", err)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec update withdraw: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return rows, nil
}

// Get reads the current read-model row for accountID.
func (s *ReadModelStore) Get(ctx context.Context, accountID string) (domain.ReadModelRow, bool, error) {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return domain.ReadModelRow{}, false, err
	}

	query, args, err := psql.Select("account_id", "balance", "last_updated_at").
		From(accountsTable).
		Where(sq.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return domain.ReadModelRow{}, false, fmt.Errorf("build get: %w", err)
	}

	var row domain.ReadModelRow

	err = db.QueryRowContext(ctx, query, args...).Scan(&row.AccountID, &row.Balance, &row.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ReadModelRow{}, false, nil
	}

	if err != nil {
		return domain.ReadModelRow{}, false, fmt.Errorf("exec get: %w", err)
	}

	return row, true, nil
}
