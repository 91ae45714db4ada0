package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/store"
)

const storeColumns = `id, name, plan, subscription_expires_at, created_at`

func (s *Store) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	var st domain.Store
	if err := s.db.GetContext(ctx, &st, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

func (s *Store) UpdateStore(ctx context.Context, st domain.Store) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stores SET name = $2, plan = $3, subscription_expires_at = $4 WHERE id = $1
	`, st.ID, st.Name, st.Plan, st.SubscriptionExpiresAt)
	return expectAffected(res, err)
}

// CreateStoreWithOwner relies on the unique user_id of store_users to refuse a
// second store for the same account.
func (s *Store) CreateStoreWithOwner(ctx context.Context, st domain.Store, owner domain.Membership) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, owner.UserID); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO stores (`+storeColumns+`)
			VALUES (:id, :name, :plan, :subscription_expires_at, :created_at)
		`, st); err != nil {
			return err
		}
		return insertMembership(ctx, tx, owner)
	})
}

func (s *Store) DeleteStore(ctx context.Context, storeID string, deleteMembers bool) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var members []string
		if deleteMembers {
			if err := tx.SelectContext(ctx, &members, `SELECT user_id FROM store_users WHERE store_id = $1`, storeID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, storeID)
		if err := expectAffected(res, err); err != nil {
			return err
		}
		if len(members) > 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ANY($1)`, members); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListStoreStats(ctx context.Context) ([]domain.StoreStats, error) {
	stats := make([]domain.StoreStats, 0)
	err := s.db.SelectContext(ctx, &stats, `
		SELECT s.id, s.name, s.plan, s.subscription_expires_at, s.created_at,
			COALESCE(ou.name, '') AS owner_name,
			COALESCE(ou.email, '') AS owner_email,
			(SELECT count(*) FROM products p WHERE p.store_id = s.id) AS product_count,
			(SELECT count(*) FROM sales sa WHERE sa.store_id = s.id) AS sale_count,
			(SELECT count(*) FROM store_users m WHERE m.store_id = s.id) AS user_count
		FROM stores s
		LEFT JOIN store_users om ON om.store_id = s.id AND om.role = 'OWNER'
		LEFT JOIN users ou ON ou.id = om.user_id
		ORDER BY s.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
