package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stoqplus/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNoOpenSession     = errors.New("no open cash session")
	ErrConflict          = errors.New("conflict")
)

// StockShortage reports the first sale line that could not be served.
type StockShortage struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *StockShortage) Error() string {
	if e.ProductName == "" {
		return fmt.Sprintf("insufficient stock: product %s not found", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductName, e.Available, e.Requested)
}

func (e *StockShortage) Unwrap() error { return ErrInsufficientStock }

// SaleFilter narrows ListSaleRecords. Zero values match everything. Records
// come back newest first, so Limit keeps the most recent ones.
type SaleFilter struct {
	From     time.Time
	To       time.Time
	Status   string
	SellerID string
	Limit    int
}

type Repository interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (*domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) error
	// DeleteAccount removes the user and, when storeID is set, the store it owns.
	DeleteAccount(ctx context.Context, userID string, storeID string) error
	CountUsers(ctx context.Context) (int, error)

	GetStore(ctx context.Context, id string) (*domain.Store, error)
	UpdateStore(ctx context.Context, st domain.Store) error
	CreateStoreWithOwner(ctx context.Context, st domain.Store, owner domain.Membership) error
	// DeleteStore removes everything scoped to the store. With deleteMembers the
	// member accounts are removed as well.
	DeleteStore(ctx context.Context, storeID string, deleteMembers bool) error
	ListStoreStats(ctx context.Context) ([]domain.StoreStats, error)

	GetMembershipByUser(ctx context.Context, userID string) (*domain.Membership, error)
	GetMembership(ctx context.Context, storeID string, id string) (*domain.Membership, error)
	ListTeam(ctx context.Context, storeID string) ([]domain.TeamMember, error)
	CreateTeamMember(ctx context.Context, user domain.User, membership domain.Membership) error
	UpdateMembership(ctx context.Context, membership domain.Membership) error
	DeleteMembership(ctx context.Context, storeID string, id string) error

	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	GetProduct(ctx context.Context, storeID string, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, storeID string, id string) error
	// ApplyStockEntry moves stock and appends the ledger row in one unit. The
	// entry's OldStock and NewStock are filled from the locked product row.
	ApplyStockEntry(ctx context.Context, entry domain.StockEntry, newCostPrice *decimal.Decimal) (*domain.Product, *domain.StockEntry, error)
	// SetStock books whatever ENTRY or LOSS brings the locked product row to
	// target. The entry comes back nil when the stock already matches.
	SetStock(ctx context.Context, entry domain.StockEntry, target int) (*domain.Product, *domain.StockEntry, error)
	// ListStockEntries returns the newest entries first; limit <= 0 means all.
	ListStockEntries(ctx context.Context, storeID string, limit int) ([]domain.StockEntry, error)

	// CreateSale prices the sale from current product prices, decrements stock
	// and writes one SALE ledger row per line, all or nothing.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListDebts(ctx context.Context, storeID string) ([]domain.Sale, error)
	MarkSalePaid(ctx context.Context, storeID string, id string) error
	ListSaleRecords(ctx context.Context, storeID string, filter SaleFilter) ([]domain.SaleRecord, error)
	ListCustomerSales(ctx context.Context, storeID string, customerID string) ([]domain.Sale, error)

	ListCustomers(ctx context.Context, storeID string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, storeID string, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) error
	UpdateCustomer(ctx context.Context, customer domain.Customer) error
	// DeleteCustomer fails with ErrConflict when the customer has sales.
	DeleteCustomer(ctx context.Context, storeID string, id string) error

	GetOpenCashSession(ctx context.Context, storeID string) (*domain.CashSession, error)
	// OpenCashSession closes any open session of the store before inserting.
	OpenCashSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error)
	AddCashMovement(ctx context.Context, storeID string, movement domain.CashMovement) (*domain.CashMovement, error)
	// CloseCashSession reconciles the open session against the PAID MONEY
	// sales made since cashSince.
	CloseCashSession(ctx context.Context, storeID string, counted decimal.Decimal, cashSince time.Time, closedAt time.Time) (*domain.CashSession, error)
	ForceCloseCashSessions(ctx context.Context, storeID string, closedAt time.Time) (int, error)
	ListClosedCashSessions(ctx context.Context, storeID string, limit int) ([]domain.CashSession, error)

	ListExpenses(ctx context.Context, storeID string) ([]domain.Expense, error)
	CreateExpenses(ctx context.Context, expenses []domain.Expense) error
	ToggleExpense(ctx context.Context, storeID string, id string, at time.Time) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, storeID string, id string) error
}

// PriceSale fills line prices and the total from the products as they are now
// and fails with a StockShortage when a line cannot be served.
func PriceSale(sale *domain.Sale, products map[string]domain.Product) error {
	// Repeated lines of one product draw from the same stock.
	remaining := make(map[string]int, len(products))
	for id, p := range products {
		remaining[id] = p.Stock
	}

	total := decimal.Zero
	for i := range sale.Items {
		item := &sale.Items[i]
		product, ok := products[item.ProductID]
		if !ok {
			return &StockShortage{ProductID: item.ProductID, Requested: item.Quantity}
		}
		if remaining[product.ID] < item.Quantity {
			return &StockShortage{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   remaining[product.ID],
				Requested:   item.Quantity,
			}
		}
		remaining[product.ID] -= item.Quantity

		item.Price = product.Price
		item.ProductName = product.Name
		total = total.Add(item.Subtotal())
	}
	sale.Total = total
	return nil
}

// CashRevenue sums the drawer-relevant part of a set of sales.
func CashRevenue(records []domain.SaleRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if r.PaymentMethod == domain.PaymentMoney && r.Status == domain.SaleStatusPaid {
			total = total.Add(r.Total)
		}
	}
	return total
}

// StockTarget turns an absolute stock level into a ledger movement from
// current. It reports false when there is nothing to book.
func StockTarget(entry domain.StockEntry, current int, target int) (domain.StockEntry, bool) {
	delta := target - current
	switch {
	case delta > 0:
		entry.Type, entry.Quantity = domain.StockEntryEntry, delta
	case delta < 0:
		entry.Type, entry.Quantity = domain.StockEntryLoss, -delta
	default:
		return entry, false
	}
	return entry, true
}
