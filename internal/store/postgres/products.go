package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/store"
)

const productColumns = `id, store_id, name, description, category, image_url, price, cost_price, stock, created_at, updated_at`

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	if err := s.db.SelectContext(ctx, &products, `
		SELECT `+productColumns+` FROM products WHERE store_id = $1 ORDER BY name
	`, storeID); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, storeID string, id string) (*domain.Product, error) {
	var p domain.Product
	if err := s.db.GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE store_id = $1 AND id = $2`, storeID, id); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :store_id, :name, :description, :category, :image_url, :price, :cost_price, :stock, :created_at, :updated_at)
	`, product)
	return translate(err)
}

// UpdateProduct leaves stock untouched; stock only moves through the ledger.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE products
		SET name = :name, description = :description, category = :category, image_url = :image_url,
			price = :price, cost_price = :cost_price, updated_at = :updated_at
		WHERE store_id = :store_id AND id = :id
	`, product)
	return expectAffected(res, err)
}

func (s *Store) DeleteProduct(ctx context.Context, storeID string, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var referenced bool
		if err := tx.GetContext(ctx, &referenced, `
			SELECT EXISTS (SELECT 1 FROM sale_items WHERE product_id = $1)
			    OR EXISTS (SELECT 1 FROM stock_entries WHERE product_id = $1)
		`, id); err != nil {
			return err
		}
		if referenced {
			return store.ErrConflict
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE store_id = $1 AND id = $2`, storeID, id)
		return expectAffected(res, err)
	})
}

func (s *Store) ApplyStockEntry(ctx context.Context, entry domain.StockEntry, newCostPrice *decimal.Decimal) (*domain.Product, *domain.StockEntry, error) {
	var product *domain.Product
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := lockProduct(ctx, tx, entry.StoreID, entry.ProductID)
		if err != nil {
			return err
		}
		product = locked
		return applyEntryTx(ctx, tx, product, &entry, newCostPrice)
	})
	if err != nil {
		return nil, nil, err
	}
	return product, &entry, nil
}

func (s *Store) SetStock(ctx context.Context, entry domain.StockEntry, target int) (*domain.Product, *domain.StockEntry, error) {
	var (
		product *domain.Product
		booked  *domain.StockEntry
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := lockProduct(ctx, tx, entry.StoreID, entry.ProductID)
		if err != nil {
			return err
		}
		product = locked
		adjusted, changed := store.StockTarget(entry, product.Stock, target)
		if !changed {
			return nil
		}
		booked = &adjusted
		return applyEntryTx(ctx, tx, product, booked, nil)
	})
	if err != nil {
		return nil, nil, err
	}
	return product, booked, nil
}

func lockProduct(ctx context.Context, tx *sqlx.Tx, storeID string, id string) (*domain.Product, error) {
	var product domain.Product
	if err := tx.GetContext(ctx, &product, `
		SELECT `+productColumns+` FROM products WHERE store_id = $1 AND id = $2 FOR UPDATE
	`, storeID, id); err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// applyEntryTx moves the locked product's stock and appends the ledger row.
func applyEntryTx(ctx context.Context, tx *sqlx.Tx, product *domain.Product, entry *domain.StockEntry, newCostPrice *decimal.Decimal) error {
	entry.OldStock = product.Stock
	switch entry.Type {
	case domain.StockEntryLoss, domain.StockEntrySale:
		entry.NewStock = product.Stock - entry.Quantity
	default:
		entry.NewStock = product.Stock + entry.Quantity
		if newCostPrice != nil {
			product.CostPrice = decimal.NewNullDecimal(*newCostPrice)
		}
	}
	entry.ProductName = product.Name
	product.Stock = entry.NewStock
	product.UpdatedAt = entry.CreatedAt

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = $2, cost_price = $3, updated_at = $4 WHERE id = $1
	`, product.ID, product.Stock, product.CostPrice, product.UpdatedAt); err != nil {
		return err
	}
	return insertStockEntry(ctx, tx, *entry)
}

const stockEntryColumns = `id, store_id, product_id, user_id, entry_type, quantity, old_stock, new_stock, reason, created_at`

func insertStockEntry(ctx context.Context, tx *sqlx.Tx, entry domain.StockEntry) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO stock_entries (`+stockEntryColumns+`)
		VALUES (:id, :store_id, :product_id, :user_id, :entry_type, :quantity, :old_stock, :new_stock, :reason, :created_at)
	`, entry)
	return err
}

func (s *Store) ListStockEntries(ctx context.Context, storeID string, limit int) ([]domain.StockEntry, error) {
	query := `
		SELECT e.id, e.store_id, e.product_id, p.name AS product_name, e.user_id, e.entry_type,
			e.quantity, e.old_stock, e.new_stock, e.reason, e.created_at
		FROM stock_entries e
		JOIN products p ON p.id = e.product_id
		WHERE e.store_id = $1
		ORDER BY e.created_at DESC, e.id`
	args := []any{storeID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	entries := make([]domain.StockEntry, 0)
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}
