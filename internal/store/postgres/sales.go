package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/store"
	"stoqplus/backend/internal/xid"
)

// saleSelect decorates sales with the seller and customer names.
const saleSelect = `
	SELECT s.id, s.store_id, s.user_id, s.customer_id, s.total, s.payment_method, s.status,
		s.due_date, s.created_at,
		COALESCE(u.name, '') AS seller_name,
		COALESCE(c.name, '') AS customer_name,
		COALESCE(c.phone, '') AS customer_phone
	FROM sales s
	LEFT JOIN users u ON u.id = s.user_id
	LEFT JOIN customers c ON c.id = s.customer_id`

// CreateSale locks the product rows so concurrent sales of the same product
// serialize on them.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	var created domain.Sale
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if sale.CustomerID != nil {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `
				SELECT EXISTS (SELECT 1 FROM customers WHERE store_id = $1 AND id = $2)
			`, sale.StoreID, *sale.CustomerID); err != nil {
				return err
			}
			if !exists {
				return store.ErrNotFound
			}
		}

		ids := make([]string, 0, len(sale.Items))
		for _, item := range sale.Items {
			ids = append(ids, item.ProductID)
		}
		var locked []domain.Product
		if err := tx.SelectContext(ctx, &locked, `
			SELECT `+productColumns+`
			FROM products
			WHERE store_id = $1 AND id = ANY($2)
			ORDER BY id
			FOR UPDATE
		`, sale.StoreID, ids); err != nil {
			return err
		}
		products := make(map[string]domain.Product, len(locked))
		for _, p := range locked {
			products[p.ID] = p
		}

		sale.Items = append([]domain.SaleItem(nil), sale.Items...)
		if err := store.PriceSale(&sale, products); err != nil {
			return err
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO sales (id, store_id, user_id, customer_id, total, payment_method, status, due_date, created_at)
			VALUES (:id, :store_id, :user_id, :customer_id, :total, :payment_method, :status, :due_date, :created_at)
		`, sale); err != nil {
			return err
		}
		for i := range sale.Items {
			sale.Items[i].SaleID = sale.ID
			item := sale.Items[i]
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO sale_items (id, sale_id, product_id, quantity, price)
				VALUES (:id, :sale_id, :product_id, :quantity, :price)
			`, item); err != nil {
				return err
			}

			product := products[item.ProductID]
			entry := domain.StockEntry{
				ID:        xid.New(),
				StoreID:   sale.StoreID,
				ProductID: product.ID,
				UserID:    sale.UserID,
				Type:      domain.StockEntrySale,
				Quantity:  item.Quantity,
				OldStock:  product.Stock,
				NewStock:  product.Stock - item.Quantity,
				Reason:    "sale " + sale.ID,
				CreatedAt: sale.CreatedAt,
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE products SET stock = $2, updated_at = $3 WHERE id = $1
			`, product.ID, entry.NewStock, sale.CreatedAt); err != nil {
				return err
			}
			if err := insertStockEntry(ctx, tx, entry); err != nil {
				return err
			}
			product.Stock = entry.NewStock
			products[product.ID] = product
		}

		if err := tx.GetContext(ctx, &created, saleSelect+` WHERE s.id = $1`, sale.ID); err != nil {
			return err
		}
		created.Items = sale.Items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) ListDebts(ctx context.Context, storeID string) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0)
	if err := s.db.SelectContext(ctx, &sales, saleSelect+`
		WHERE s.store_id = $1 AND s.payment_method = 'CREDIT_STORE' AND s.status = 'PENDING'
		ORDER BY s.due_date ASC NULLS LAST
	`, storeID); err != nil {
		return nil, err
	}
	return sales, s.attachItems(ctx, sales)
}

func (s *Store) MarkSalePaid(ctx context.Context, storeID string, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales SET status = 'PAID' WHERE store_id = $1 AND id = $2 AND status = 'PENDING'
	`, storeID, id)
	return expectAffected(res, err)
}

func (s *Store) ListCustomerSales(ctx context.Context, storeID string, customerID string) ([]domain.Sale, error) {
	if _, err := s.GetCustomer(ctx, storeID, customerID); err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0)
	if err := s.db.SelectContext(ctx, &sales, saleSelect+`
		WHERE s.store_id = $1 AND s.customer_id = $2
		ORDER BY s.created_at DESC
	`, storeID, customerID); err != nil {
		return nil, err
	}
	return sales, s.attachItems(ctx, sales)
}

type saleItemRow struct {
	domain.SaleItem
	Category  string              `db:"category"`
	CostPrice decimal.NullDecimal `db:"cost_price"`
}

func (s *Store) loadItems(ctx context.Context, saleIDs []string) (map[string][]saleItemRow, error) {
	items := make(map[string][]saleItemRow, len(saleIDs))
	if len(saleIDs) == 0 {
		return items, nil
	}
	var rows []saleItemRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT i.id, i.sale_id, i.product_id, p.name AS product_name, i.quantity, i.price,
			p.category, p.cost_price
		FROM sale_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.sale_id = ANY($1)
		ORDER BY i.sale_id, i.id
	`, saleIDs); err != nil {
		return nil, err
	}
	for _, row := range rows {
		items[row.SaleID] = append(items[row.SaleID], row)
	}
	return items, nil
}

func (s *Store) attachItems(ctx context.Context, sales []domain.Sale) error {
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return err
	}
	for i := range sales {
		rows := items[sales[i].ID]
		sales[i].Items = make([]domain.SaleItem, 0, len(rows))
		for _, row := range rows {
			sales[i].Items = append(sales[i].Items, row.SaleItem)
		}
	}
	return nil
}

func (s *Store) ListSaleRecords(ctx context.Context, storeID string, filter store.SaleFilter) ([]domain.SaleRecord, error) {
	where := []string{"s.store_id = $1"}
	args := []any{storeID}
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !filter.From.IsZero() {
		add("s.created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("s.created_at < $%d", filter.To)
	}
	if filter.Status != "" {
		add("s.status = $%d", filter.Status)
	}
	if filter.SellerID != "" {
		add("s.user_id = $%d", filter.SellerID)
	}
	query := saleSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY s.created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var sales []domain.Sale
	if err := s.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	records := make([]domain.SaleRecord, 0, len(sales))
	for _, sale := range sales {
		rec := domain.SaleRecord{
			SaleID:        sale.ID,
			SellerID:      sale.UserID,
			SellerName:    sale.SellerName,
			CustomerName:  sale.CustomerName,
			PaymentMethod: sale.PaymentMethod,
			Status:        sale.Status,
			Total:         sale.Total,
			CreatedAt:     sale.CreatedAt.UTC(),
		}
		if sale.CustomerID != nil {
			rec.CustomerID = *sale.CustomerID
		}
		for _, row := range items[sale.ID] {
			rec.Items = append(rec.Items, domain.SaleRecordItem{
				ProductID:   row.ProductID,
				ProductName: row.ProductName,
				Category:    row.Category,
				Quantity:    row.Quantity,
				Price:       row.Price,
				CostPrice:   row.CostPrice.Decimal,
			})
		}
		records = append(records, rec)
	}
	return records, nil
}

// cashRevenue sums the PAID MONEY sales of the store since a moment.
func cashRevenue(ctx context.Context, tx *sqlx.Tx, storeID string, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := tx.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(total), 0)
		FROM sales
		WHERE store_id = $1 AND payment_method = 'MONEY' AND status = 'PAID' AND created_at >= $2
	`, storeID, since)
	return total, err
}
