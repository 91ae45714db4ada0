package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/store"
	"stoqplus/backend/internal/xid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("STOQ_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOQ_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, Options{MaxOpenConns: 10})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := Migrate(ctx, s.DB(), "up"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

// seedTenant creates a store with an owner and one product holding stock units.
func seedTenant(t *testing.T, s *Store, stock int) (storeID string, userID string, productID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	userID, storeID, productID = xid.New(), xid.New(), xid.New()
	if err := s.CreateUser(ctx, domain.User{ID: userID, Name: "Dona IT", Email: userID + "@it.test", IsVerified: true, CreatedAt: now}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	st := domain.Store{ID: storeID, Name: "Loja IT", Plan: domain.PlanFree, CreatedAt: now}
	owner := domain.Membership{ID: xid.New(), UserID: userID, StoreID: storeID, Role: domain.RoleOwner, CanSell: true, CanManageProducts: true, CreatedAt: now}
	if err := s.CreateStoreWithOwner(ctx, st, owner); err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DeleteStore(context.Background(), storeID, true)
	})
	if err := s.CreateProduct(ctx, domain.Product{
		ID: productID, StoreID: storeID, Name: "Produto IT", Category: domain.DefaultCategory,
		Price: decimal.RequireFromString("10.00"), CostPrice: decimal.NewNullDecimal(decimal.RequireFromString("6.00")),
		Stock: stock, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return storeID, userID, productID
}

func TestConcurrentSalesDoNotOversell(t *testing.T) {
	s := openTestStore(t)
	storeID, userID, productID := seedTenant(t, s, 3)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	sold := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := xid.New()
			_, err := s.CreateSale(ctx, domain.Sale{
				ID: id, StoreID: storeID, UserID: userID, PaymentMethod: domain.PaymentMoney,
				Status: domain.SaleStatusPaid, CreatedAt: time.Now().UTC(),
				Items: []domain.SaleItem{{ID: xid.New(), SaleID: id, ProductID: productID, Quantity: 1}},
			})
			if err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrInsufficientStock) && !errors.Is(err, store.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	product, err := s.GetProduct(ctx, storeID, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock < 0 {
		t.Fatalf("stock went negative: %d", product.Stock)
	}
	if product.Stock != 3-sold {
		t.Fatalf("expected stock %d after %d sales, got %d", 3-sold, sold, product.Stock)
	}
	entries, err := s.ListStockEntries(ctx, storeID, 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != sold {
		t.Fatalf("expected %d ledger rows, got %d", sold, len(entries))
	}
}

func TestCloseCashSessionReconciles(t *testing.T) {
	s := openTestStore(t)
	storeID, userID, productID := seedTenant(t, s, 100)
	ctx := context.Background()
	now := time.Now().UTC()
	money := func(v string) decimal.Decimal { return decimal.RequireFromString(v) }

	if _, err := s.OpenCashSession(ctx, domain.CashSession{
		ID: xid.New(), StoreID: storeID, UserID: userID, Operator: "Dona IT",
		OpeningBalance: money("100"), OpenedAt: now,
	}); err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, mv := range []domain.CashMovement{
		{ID: xid.New(), Type: domain.MovementSupply, Value: money("50"), CreatedAt: now},
		{ID: xid.New(), Type: domain.MovementBleed, Value: money("20"), CreatedAt: now},
	} {
		if _, err := s.AddCashMovement(ctx, storeID, mv); err != nil {
			t.Fatalf("movement: %v", err)
		}
	}
	for _, method := range []string{domain.PaymentMoney, domain.PaymentPix} {
		id := xid.New()
		if _, err := s.CreateSale(ctx, domain.Sale{
			ID: id, StoreID: storeID, UserID: userID, PaymentMethod: method,
			Status: domain.SaleStatusPaid, CreatedAt: now,
			Items: []domain.SaleItem{{ID: xid.New(), SaleID: id, ProductID: productID, Quantity: 30}},
		}); err != nil {
			t.Fatalf("sale: %v", err)
		}
	}

	session, err := s.CloseCashSession(ctx, storeID, money("430"), now.Add(-time.Minute), now)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !session.Expected().Equal(money("430")) {
		t.Fatalf("expected 430, got %s", session.Expected())
	}
	if !session.Difference.IsZero() {
		t.Fatalf("expected no difference, got %s", session.Difference)
	}
	if _, err := s.GetOpenCashSession(ctx, storeID); !errors.Is(err, store.ErrNoOpenSession) {
		t.Fatalf("expected no open session, got %v", err)
	}
}

func TestCreateStoreWithOwnerOnce(t *testing.T) {
	s := openTestStore(t)
	_, userID, _ := seedTenant(t, s, 1)
	now := time.Now().UTC()
	second := xid.New()

	err := s.CreateStoreWithOwner(context.Background(),
		domain.Store{ID: second, Name: "Segunda", Plan: domain.PlanFree, CreatedAt: now},
		domain.Membership{ID: xid.New(), UserID: userID, StoreID: second, Role: domain.RoleOwner, CreatedAt: now},
	)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLedgerRowsBlockProductDeleteAndSetStockBooksDelta(t *testing.T) {
	s := openTestStore(t)
	storeID, userID, productID := seedTenant(t, s, 5)
	ctx := context.Background()
	now := time.Now().UTC()

	product, entry, err := s.SetStock(ctx, domain.StockEntry{
		ID: xid.New(), StoreID: storeID, ProductID: productID, UserID: userID, CreatedAt: now,
	}, 2)
	if err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if entry == nil || entry.Type != domain.StockEntryLoss || entry.Quantity != 3 || product.Stock != 2 {
		t.Fatalf("expected LOSS 3 down to 2, got entry %+v stock %d", entry, product.Stock)
	}

	if err := s.DeleteProduct(ctx, storeID, productID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting a product with ledger rows, got %v", err)
	}
	entries, err := s.ListStockEntries(ctx, storeID, 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the ledger row to survive, got %d", len(entries))
	}
}
