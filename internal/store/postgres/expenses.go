package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"stoqplus/backend/internal/domain"
)

const expenseColumns = `id, store_id, description, category, value, due_date, paid, paid_at, created_at`

func (s *Store) ListExpenses(ctx context.Context, storeID string) ([]domain.Expense, error) {
	expenses := make([]domain.Expense, 0)
	if err := s.db.SelectContext(ctx, &expenses, `
		SELECT `+expenseColumns+` FROM expenses WHERE store_id = $1 ORDER BY due_date, description
	`, storeID); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) CreateExpenses(ctx context.Context, expenses []domain.Expense) error {
	if len(expenses) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO expenses (`+expenseColumns+`)
			VALUES (:id, :store_id, :description, :category, :value, :due_date, :paid, :paid_at, :created_at)
		`, expenses)
		return err
	})
}

func (s *Store) ToggleExpense(ctx context.Context, storeID string, id string, at time.Time) (*domain.Expense, error) {
	var expense domain.Expense
	err := s.db.GetContext(ctx, &expense, `
		UPDATE expenses
		SET paid = NOT paid, paid_at = CASE WHEN paid THEN NULL ELSE $3::timestamptz END
		WHERE store_id = $1 AND id = $2
		RETURNING `+expenseColumns, storeID, id, at)
	if err != nil {
		return nil, translate(err)
	}
	return &expense, nil
}

func (s *Store) DeleteExpense(ctx context.Context, storeID string, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE store_id = $1 AND id = $2`, storeID, id)
	return expectAffected(res, err)
}
