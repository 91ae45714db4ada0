package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/store"
)

const sessionColumns = `id, store_id, user_id, operator, status, opening_balance, total_revenue, total_bleed,
	total_supply, counted_money, difference, opened_at, closed_at`

func (s *Store) GetOpenCashSession(ctx context.Context, storeID string) (*domain.CashSession, error) {
	var session domain.CashSession
	err := s.db.GetContext(ctx, &session, `
		SELECT `+sessionColumns+` FROM cash_sessions WHERE store_id = $1 AND status = 'OPEN'
	`, storeID)
	if err != nil {
		if errors.Is(translate(err), store.ErrNotFound) {
			return nil, store.ErrNoOpenSession
		}
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &session.Movements, `
		SELECT id, session_id, movement_type, value, description, created_at
		FROM cash_movements WHERE session_id = $1 ORDER BY created_at
	`, session.ID); err != nil {
		return nil, err
	}
	return &session, nil
}

// lockOpenSession loads the open session with its movements, locking the row.
func lockOpenSession(ctx context.Context, tx *sqlx.Tx, storeID string) (*domain.CashSession, error) {
	var session domain.CashSession
	err := tx.GetContext(ctx, &session, `
		SELECT `+sessionColumns+` FROM cash_sessions WHERE store_id = $1 AND status = 'OPEN' FOR UPDATE
	`, storeID)
	if err != nil {
		if errors.Is(translate(err), store.ErrNotFound) {
			return nil, store.ErrNoOpenSession
		}
		return nil, err
	}
	if err := tx.SelectContext(ctx, &session.Movements, `
		SELECT id, session_id, movement_type, value, description, created_at
		FROM cash_movements WHERE session_id = $1 ORDER BY created_at
	`, session.ID); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) OpenCashSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE cash_sessions SET status = 'CLOSED', closed_at = $2 WHERE store_id = $1 AND status = 'OPEN'
		`, session.StoreID, session.OpenedAt); err != nil {
			return err
		}
		session.Status = domain.CashStatusOpen
		session.ClosedAt = nil
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO cash_sessions (`+sessionColumns+`)
			VALUES (:id, :store_id, :user_id, :operator, :status, :opening_balance, :total_revenue, :total_bleed,
				:total_supply, :counted_money, :difference, :opened_at, :closed_at)
		`, session)
		return err
	})
	if err != nil {
		return nil, err
	}
	session.Movements = nil
	return &session, nil
}

func (s *Store) AddCashMovement(ctx context.Context, storeID string, movement domain.CashMovement) (*domain.CashMovement, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		session, err := lockOpenSession(ctx, tx, storeID)
		if err != nil {
			return err
		}
		movement.SessionID = session.ID
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO cash_movements (id, session_id, movement_type, value, description, created_at)
			VALUES (:id, :session_id, :movement_type, :value, :description, :created_at)
		`, movement)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

func (s *Store) CloseCashSession(ctx context.Context, storeID string, counted decimal.Decimal, cashSince time.Time, closedAt time.Time) (*domain.CashSession, error) {
	var session *domain.CashSession
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		session, err = lockOpenSession(ctx, tx, storeID)
		if err != nil {
			return err
		}
		revenue, err := cashRevenue(ctx, tx, storeID, cashSince)
		if err != nil {
			return err
		}
		session.Reconcile(revenue, counted)
		session.Status = domain.CashStatusClosed
		session.ClosedAt = &closedAt

		_, err = tx.NamedExecContext(ctx, `
			UPDATE cash_sessions
			SET status = :status, total_revenue = :total_revenue, total_bleed = :total_bleed,
				total_supply = :total_supply, counted_money = :counted_money, difference = :difference,
				closed_at = :closed_at
			WHERE id = :id
		`, session)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Store) ForceCloseCashSessions(ctx context.Context, storeID string, closedAt time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cash_sessions SET status = 'CLOSED', closed_at = $2 WHERE store_id = $1 AND status = 'OPEN'
	`, storeID, closedAt)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) ListClosedCashSessions(ctx context.Context, storeID string, limit int) ([]domain.CashSession, error) {
	sessions := make([]domain.CashSession, 0, limit)
	if err := s.db.SelectContext(ctx, &sessions, `
		SELECT `+sessionColumns+` FROM cash_sessions
		WHERE store_id = $1 AND status = 'CLOSED'
		ORDER BY closed_at DESC NULLS LAST
		LIMIT $2
	`, storeID, limit); err != nil {
		return nil, err
	}
	return sessions, nil
}
