package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/store"
)

const customerColumns = `id, store_id, name, email, phone, cpf, address, created_at`

func (s *Store) ListCustomers(ctx context.Context, storeID string) ([]domain.Customer, error) {
	customers := make([]domain.Customer, 0)
	if err := s.db.SelectContext(ctx, &customers, `
		SELECT c.id, c.store_id, c.name, c.email, c.phone, c.cpf, c.address, c.created_at,
			(SELECT count(*) FROM sales s WHERE s.customer_id = c.id) AS sales_count
		FROM customers c
		WHERE c.store_id = $1
		ORDER BY c.name
	`, storeID); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, storeID string, id string) (*domain.Customer, error) {
	var c domain.Customer
	if err := s.db.GetContext(ctx, &c, `SELECT `+customerColumns+` FROM customers WHERE store_id = $1 AND id = $2`, storeID, id); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES (:id, :store_id, :name, :email, :phone, :cpf, :address, :created_at)
	`, customer)
	return translate(err)
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE customers
		SET name = :name, email = :email, phone = :phone, cpf = :cpf, address = :address
		WHERE store_id = :store_id AND id = :id
	`, customer)
	return expectAffected(res, err)
}

func (s *Store) DeleteCustomer(ctx context.Context, storeID string, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var hasSales bool
		if err := tx.GetContext(ctx, &hasSales, `SELECT EXISTS (SELECT 1 FROM sales WHERE customer_id = $1)`, id); err != nil {
			return err
		}
		if hasSales {
			return store.ErrConflict
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE store_id = $1 AND id = $2`, storeID, id)
		return expectAffected(res, err)
	})
}
