package memory

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/store"
	"stoqplus/backend/internal/xid"
)

const (
	DemoStoreID        = "store-demo"
	DemoOwnerEmail     = "owner@demo.stoqplus.app"
	DemoSellerEmail    = "seller@demo.stoqplus.app"
	demoOwnerID        = "user-demo-owner"
	demoSellerID       = "user-demo-seller"
	defaultSeedSecret  = "Demo#2026pass"
	seedPasswordEnvKey = "SEED_DEMO_PASSWORD"
)

type Store struct {
	mu           sync.RWMutex
	users        map[string]domain.User
	userByEmail  map[string]string
	stores       map[string]domain.Store
	memberships  map[string]domain.Membership
	products     map[string]domain.Product
	customers    map[string]domain.Customer
	sales        []domain.Sale
	stockEntries []domain.StockEntry
	cashSessions map[string]domain.CashSession
	movements    map[string][]domain.CashMovement
	expenses     map[string]domain.Expense
}

func New() *Store {
	return &Store{
		users:        make(map[string]domain.User),
		userByEmail:  make(map[string]string),
		stores:       make(map[string]domain.Store),
		memberships:  make(map[string]domain.Membership),
		products:     make(map[string]domain.Product),
		customers:    make(map[string]domain.Customer),
		cashSessions: make(map[string]domain.CashSession),
		movements:    make(map[string][]domain.CashMovement),
		expenses:     make(map[string]domain.Expense),
	}
}

// UsesDefaultSeedPassword reports whether NewSeeded would fall back to the
// built-in demo password.
func UsesDefaultSeedPassword() bool {
	return os.Getenv(seedPasswordEnvKey) == ""
}

// NewSeeded returns a store holding one demo tenant with an owner, a seller
// and a small catalogue. The demo password comes from SEED_DEMO_PASSWORD.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	password := os.Getenv(seedPasswordEnvKey)
	if password == "" {
		password = defaultSeedSecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("memory: hashing %s: %v", seedPasswordEnvKey, err))
	}

	s.stores[DemoStoreID] = domain.Store{ID: DemoStoreID, Name: "Loja Demo", Plan: domain.PlanFree, CreatedAt: now}
	for _, u := range []struct {
		id, name, email, role string
		canSell, canManage    bool
	}{
		{demoOwnerID, "Dona Demo", DemoOwnerEmail, domain.RoleOwner, true, true},
		{demoSellerID, "Vendedor Demo", DemoSellerEmail, domain.RoleSeller, true, false},
	} {
		s.users[u.id] = domain.User{ID: u.id, Name: u.name, Email: u.email, PasswordHash: string(hash), IsVerified: true, CreatedAt: now}
		s.userByEmail[u.email] = u.id
		membershipID := "member-" + u.id
		s.memberships[membershipID] = domain.Membership{
			ID: membershipID, UserID: u.id, StoreID: DemoStoreID, Role: u.role,
			CanSell: u.canSell, CanManageProducts: u.canManage, CreatedAt: now,
		}
	}

	for i, p := range []struct {
		name, category string
		price, cost    string
		stock          int
	}{
		{"Arroz 5kg", "Mercearia", "27.90", "19.50", 40},
		{"Feijão 1kg", "Mercearia", "8.49", "5.10", 60},
		{"Café 500g", "Bebidas", "18.90", "12.00", 25},
		{"Sabão em pó", "Limpeza", "14.50", "9.80", 4},
	} {
		id := "product-demo-" + string(rune('a'+i))
		s.products[id] = domain.Product{
			ID: id, StoreID: DemoStoreID, Name: p.name, Category: p.category,
			Price: decimal.RequireFromString(p.price), CostPrice: decimal.NewNullDecimal(decimal.RequireFromString(p.cost)),
			Stock: p.stock, CreatedAt: now, UpdatedAt: now,
		}
	}
	return s
}

func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertUserLocked(user)
}

func (s *Store) insertUserLocked(user domain.User) error {
	email := normalizeEmail(user.Email)
	if _, exists := s.userByEmail[email]; exists {
		return store.ErrConflict
	}
	user.Email = email
	s.users[user.ID] = user
	s.userByEmail[email] = user.ID
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userByEmail[normalizeEmail(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *Store) GetUserByVerificationToken(_ context.Context, token string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if token == "" {
		return nil, store.ErrNotFound
	}
	for _, user := range s.users {
		if user.VerificationToken != nil && *user.VerificationToken == token {
			return &user, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	user.Email = existing.Email
	user.CreatedAt = existing.CreatedAt
	s.users[user.ID] = user
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, userID string, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	if storeID != "" {
		s.deleteStoreLocked(storeID, false)
	}
	for id, m := range s.memberships {
		if m.UserID == userID {
			delete(s.memberships, id)
		}
	}
	delete(s.users, userID)
	delete(s.userByEmail, user.Email)
	return nil
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *Store) GetStore(_ context.Context, id string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stores[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (s *Store) UpdateStore(_ context.Context, st domain.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.stores[st.ID]
	if !ok {
		return store.ErrNotFound
	}
	st.CreatedAt = existing.CreatedAt
	s.stores[st.ID] = st
	return nil
}

func (s *Store) CreateStoreWithOwner(_ context.Context, st domain.Store, owner domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[owner.UserID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.membershipByUserLocked(owner.UserID); ok {
		return store.ErrConflict
	}
	s.stores[st.ID] = st
	s.memberships[owner.ID] = owner
	return nil
}

func (s *Store) DeleteStore(_ context.Context, storeID string, deleteMembers bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stores[storeID]; !ok {
		return store.ErrNotFound
	}
	s.deleteStoreLocked(storeID, deleteMembers)
	return nil
}

func (s *Store) deleteStoreLocked(storeID string, deleteMembers bool) {
	for id, m := range s.memberships {
		if m.StoreID != storeID {
			continue
		}
		delete(s.memberships, id)
		if deleteMembers {
			if user, ok := s.users[m.UserID]; ok {
				delete(s.userByEmail, user.Email)
				delete(s.users, m.UserID)
			}
		}
	}
	for id, p := range s.products {
		if p.StoreID == storeID {
			delete(s.products, id)
		}
	}
	for id, c := range s.customers {
		if c.StoreID == storeID {
			delete(s.customers, id)
		}
	}
	s.sales = slices.DeleteFunc(s.sales, func(sale domain.Sale) bool { return sale.StoreID == storeID })
	s.stockEntries = slices.DeleteFunc(s.stockEntries, func(e domain.StockEntry) bool { return e.StoreID == storeID })
	for id, cs := range s.cashSessions {
		if cs.StoreID == storeID {
			delete(s.cashSessions, id)
			delete(s.movements, id)
		}
	}
	for id, e := range s.expenses {
		if e.StoreID == storeID {
			delete(s.expenses, id)
		}
	}
	delete(s.stores, storeID)
}

func (s *Store) ListStoreStats(_ context.Context) ([]domain.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]*domain.StoreStats, len(s.stores))
	for id, st := range s.stores {
		stats[id] = &domain.StoreStats{Store: st}
	}
	for _, m := range s.memberships {
		row, ok := stats[m.StoreID]
		if !ok {
			continue
		}
		row.UserCount++
		if m.Role == domain.RoleOwner {
			owner := s.users[m.UserID]
			row.OwnerName = owner.Name
			row.OwnerEmail = owner.Email
		}
	}
	for _, p := range s.products {
		if row, ok := stats[p.StoreID]; ok {
			row.ProductCount++
		}
	}
	for _, sale := range s.sales {
		if row, ok := stats[sale.StoreID]; ok {
			row.SaleCount++
		}
	}

	out := make([]domain.StoreStats, 0, len(stats))
	for _, row := range stats {
		out = append(out, *row)
	}
	slices.SortFunc(out, func(a, b domain.StoreStats) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) GetMembershipByUser(_ context.Context, userID string) (*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.membershipByUserLocked(userID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) membershipByUserLocked(userID string) (domain.Membership, bool) {
	for _, m := range s.memberships {
		if m.UserID == userID {
			return m, true
		}
	}
	return domain.Membership{}, false
}

func (s *Store) GetMembership(_ context.Context, storeID string, id string) (*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[id]
	if !ok || m.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) ListTeam(_ context.Context, storeID string) ([]domain.TeamMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	team := make([]domain.TeamMember, 0)
	for _, m := range s.memberships {
		if m.StoreID != storeID || m.Role == domain.RoleOwner {
			continue
		}
		user := s.users[m.UserID]
		team = append(team, domain.TeamMember{
			ID: m.ID, UserID: m.UserID, Name: user.Name, Email: user.Email,
			Role: m.Role, CanSell: m.CanSell, CanManageProducts: m.CanManageProducts,
		})
	}
	slices.SortFunc(team, func(a, b domain.TeamMember) int { return strings.Compare(a.Name, b.Name) })
	return team, nil
}

func (s *Store) CreateTeamMember(_ context.Context, user domain.User, membership domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stores[membership.StoreID]; !ok {
		return store.ErrNotFound
	}
	if err := s.insertUserLocked(user); err != nil {
		return err
	}
	s.memberships[membership.ID] = membership
	return nil
}

func (s *Store) UpdateMembership(_ context.Context, membership domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.memberships[membership.ID]
	if !ok || existing.StoreID != membership.StoreID {
		return store.ErrNotFound
	}
	existing.Role = membership.Role
	existing.CanSell = membership.CanSell
	existing.CanManageProducts = membership.CanManageProducts
	s.memberships[membership.ID] = existing
	return nil
}

func (s *Store) DeleteMembership(_ context.Context, storeID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberships[id]
	if !ok || m.StoreID != storeID {
		return store.ErrNotFound
	}
	delete(s.memberships, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.StoreID == storeID {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return strings.Compare(a.Name, b.Name) })
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, storeID string, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok || p.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stores[product.StoreID]; !ok {
		return store.ErrNotFound
	}
	s.products[product.ID] = product
	return nil
}

// UpdateProduct leaves stock untouched; stock only moves through the ledger.
func (s *Store) UpdateProduct(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok || existing.StoreID != product.StoreID {
		return store.ErrNotFound
	}
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, storeID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || p.StoreID != storeID {
		return store.ErrNotFound
	}
	for _, sale := range s.sales {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return store.ErrConflict
			}
		}
	}
	for _, e := range s.stockEntries {
		if e.ProductID == id {
			return store.ErrConflict
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ApplyStockEntry(_ context.Context, entry domain.StockEntry, newCostPrice *decimal.Decimal) (*domain.Product, *domain.StockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[entry.ProductID]
	if !ok || product.StoreID != entry.StoreID {
		return nil, nil, store.ErrNotFound
	}
	return s.applyEntryLocked(product, entry, newCostPrice)
}

func (s *Store) SetStock(_ context.Context, entry domain.StockEntry, target int) (*domain.Product, *domain.StockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[entry.ProductID]
	if !ok || product.StoreID != entry.StoreID {
		return nil, nil, store.ErrNotFound
	}
	entry, changed := store.StockTarget(entry, product.Stock, target)
	if !changed {
		return &product, nil, nil
	}
	return s.applyEntryLocked(product, entry, nil)
}

func (s *Store) applyEntryLocked(product domain.Product, entry domain.StockEntry, newCostPrice *decimal.Decimal) (*domain.Product, *domain.StockEntry, error) {
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
	if entry.ID == "" {
		entry.ID = xid.New()
	}
	entry.ProductName = product.Name

	product.Stock = entry.NewStock
	product.UpdatedAt = entry.CreatedAt
	s.products[product.ID] = product
	s.stockEntries = append(s.stockEntries, entry)
	return &product, &entry, nil
}

func (s *Store) ListStockEntries(_ context.Context, storeID string, limit int) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.StockEntry, 0)
	for i := len(s.stockEntries) - 1; i >= 0 && (limit <= 0 || len(entries) < limit); i-- {
		e := s.stockEntries[i]
		if e.StoreID != storeID {
			continue
		}
		if p, ok := s.products[e.ProductID]; ok {
			e.ProductName = p.Name
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.CustomerID != nil {
		c, ok := s.customers[*sale.CustomerID]
		if !ok || c.StoreID != sale.StoreID {
			return nil, store.ErrNotFound
		}
	}

	products := make(map[string]domain.Product, len(sale.Items))
	for _, item := range sale.Items {
		if p, ok := s.products[item.ProductID]; ok && p.StoreID == sale.StoreID {
			products[p.ID] = p
		}
	}
	sale.Items = slices.Clone(sale.Items)
	if err := store.PriceSale(&sale, products); err != nil {
		return nil, err
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		if item.ID == "" {
			item.ID = xid.New()
		}
		item.SaleID = sale.ID

		product := s.products[item.ProductID]
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
		product.Stock = entry.NewStock
		product.UpdatedAt = sale.CreatedAt
		s.products[product.ID] = product
		s.stockEntries = append(s.stockEntries, entry)
	}

	s.sales = append(s.sales, cloneSale(sale))
	out := s.decorateSaleLocked(sale)
	return &out, nil
}

func (s *Store) ListDebts(_ context.Context, storeID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debts := make([]domain.Sale, 0)
	for _, sale := range s.sales {
		if sale.StoreID == storeID && sale.PaymentMethod == domain.PaymentCreditStore && sale.Status == domain.SaleStatusPending {
			debts = append(debts, s.decorateSaleLocked(sale))
		}
	}
	slices.SortFunc(debts, func(a, b domain.Sale) int { return compareDue(a.DueDate, b.DueDate) })
	return debts, nil
}

func (s *Store) MarkSalePaid(_ context.Context, storeID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sales {
		if s.sales[i].ID == id && s.sales[i].StoreID == storeID && s.sales[i].Status == domain.SaleStatusPending {
			s.sales[i].Status = domain.SaleStatusPaid
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ListSaleRecords(_ context.Context, storeID string, filter store.SaleFilter) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.SaleRecord, 0)
	for _, sale := range s.sales {
		if sale.StoreID != storeID || !matchesFilter(sale, filter) {
			continue
		}
		records = append(records, s.saleRecordLocked(sale))
	}
	slices.SortFunc(records, func(a, b domain.SaleRecord) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

func (s *Store) ListCustomerSales(_ context.Context, storeID string, customerID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.customers[customerID]; !ok || c.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	sales := make([]domain.Sale, 0)
	for _, sale := range s.sales {
		if sale.StoreID == storeID && sale.CustomerID != nil && *sale.CustomerID == customerID {
			sales = append(sales, s.decorateSaleLocked(sale))
		}
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return sales, nil
}

func (s *Store) ListCustomers(_ context.Context, storeID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, sale := range s.sales {
		if sale.StoreID == storeID && sale.CustomerID != nil {
			counts[*sale.CustomerID]++
		}
	}
	customers := make([]domain.Customer, 0)
	for _, c := range s.customers {
		if c.StoreID == storeID {
			c.SalesCount = counts[c.ID]
			customers = append(customers, c)
		}
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int { return strings.Compare(a.Name, b.Name) })
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, storeID string, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok || c.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stores[customer.StoreID]; !ok {
		return store.ErrNotFound
	}
	s.customers[customer.ID] = customer
	return nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok || existing.StoreID != customer.StoreID {
		return store.ErrNotFound
	}
	customer.CreatedAt = existing.CreatedAt
	s.customers[customer.ID] = customer
	return nil
}

func (s *Store) DeleteCustomer(_ context.Context, storeID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok || c.StoreID != storeID {
		return store.ErrNotFound
	}
	for _, sale := range s.sales {
		if sale.CustomerID != nil && *sale.CustomerID == id {
			return store.ErrConflict
		}
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) GetOpenCashSession(_ context.Context, storeID string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.openSessionLocked(storeID)
	if !ok {
		return nil, store.ErrNoOpenSession
	}
	return &session, nil
}

func (s *Store) openSessionLocked(storeID string) (domain.CashSession, bool) {
	for _, cs := range s.cashSessions {
		if cs.StoreID == storeID && cs.Status == domain.CashStatusOpen {
			cs.Movements = slices.Clone(s.movements[cs.ID])
			return cs, true
		}
	}
	return domain.CashSession{}, false
}

func (s *Store) OpenCashSession(_ context.Context, session domain.CashSession) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.forceCloseLocked(session.StoreID, session.OpenedAt)
	session.Status = domain.CashStatusOpen
	session.ClosedAt = nil
	session.Movements = nil
	s.cashSessions[session.ID] = session
	return &session, nil
}

func (s *Store) AddCashMovement(_ context.Context, storeID string, movement domain.CashMovement) (*domain.CashMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.openSessionLocked(storeID)
	if !ok {
		return nil, store.ErrNoOpenSession
	}
	movement.SessionID = session.ID
	s.movements[session.ID] = append(s.movements[session.ID], movement)
	return &movement, nil
}

func (s *Store) CloseCashSession(_ context.Context, storeID string, counted decimal.Decimal, cashSince time.Time, closedAt time.Time) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.openSessionLocked(storeID)
	if !ok {
		return nil, store.ErrNoOpenSession
	}

	records := make([]domain.SaleRecord, 0)
	for _, sale := range s.sales {
		if sale.StoreID == storeID && !sale.CreatedAt.Before(cashSince) {
			records = append(records, domain.SaleRecord{PaymentMethod: sale.PaymentMethod, Status: sale.Status, Total: sale.Total})
		}
	}
	session.Reconcile(store.CashRevenue(records), counted)
	session.Status = domain.CashStatusClosed
	session.ClosedAt = &closedAt

	stored := session
	stored.Movements = nil
	s.cashSessions[session.ID] = stored
	return &session, nil
}

func (s *Store) ForceCloseCashSessions(_ context.Context, storeID string, closedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forceCloseLocked(storeID, closedAt), nil
}

func (s *Store) forceCloseLocked(storeID string, closedAt time.Time) int {
	closed := 0
	for id, cs := range s.cashSessions {
		if cs.StoreID == storeID && cs.Status == domain.CashStatusOpen {
			at := closedAt
			cs.Status = domain.CashStatusClosed
			cs.ClosedAt = &at
			s.cashSessions[id] = cs
			closed++
		}
	}
	return closed
}

func (s *Store) ListClosedCashSessions(_ context.Context, storeID string, limit int) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]domain.CashSession, 0)
	for _, cs := range s.cashSessions {
		if cs.StoreID == storeID && cs.Status == domain.CashStatusClosed {
			sessions = append(sessions, cs)
		}
	}
	slices.SortFunc(sessions, func(a, b domain.CashSession) int { return compareDue(b.ClosedAt, a.ClosedAt) })
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *Store) ListExpenses(_ context.Context, storeID string) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0)
	for _, e := range s.expenses {
		if e.StoreID == storeID {
			expenses = append(expenses, e)
		}
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		return strings.Compare(a.Description, b.Description)
	})
	return expenses, nil
}

func (s *Store) CreateExpenses(_ context.Context, expenses []domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range expenses {
		if _, ok := s.stores[e.StoreID]; !ok {
			return store.ErrNotFound
		}
	}
	for _, e := range expenses {
		s.expenses[e.ID] = e
	}
	return nil
}

func (s *Store) ToggleExpense(_ context.Context, storeID string, id string, at time.Time) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	e.Paid = !e.Paid
	e.PaidAt = nil
	if e.Paid {
		paidAt := at
		e.PaidAt = &paidAt
	}
	s.expenses[id] = e
	return &e, nil
}

func (s *Store) DeleteExpense(_ context.Context, storeID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.StoreID != storeID {
		return store.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) decorateSaleLocked(sale domain.Sale) domain.Sale {
	out := cloneSale(sale)
	out.SellerName = s.users[sale.UserID].Name
	if sale.CustomerID != nil {
		if c, ok := s.customers[*sale.CustomerID]; ok {
			out.CustomerName = c.Name
			if c.Phone != nil {
				out.CustomerPhone = *c.Phone
			}
		}
	}
	for i := range out.Items {
		if p, ok := s.products[out.Items[i].ProductID]; ok {
			out.Items[i].ProductName = p.Name
		}
	}
	return out
}

func (s *Store) saleRecordLocked(sale domain.Sale) domain.SaleRecord {
	rec := domain.SaleRecord{
		SaleID:        sale.ID,
		SellerID:      sale.UserID,
		SellerName:    s.users[sale.UserID].Name,
		PaymentMethod: sale.PaymentMethod,
		Status:        sale.Status,
		Total:         sale.Total,
		CreatedAt:     sale.CreatedAt,
		Items:         make([]domain.SaleRecordItem, 0, len(sale.Items)),
	}
	if sale.CustomerID != nil {
		rec.CustomerID = *sale.CustomerID
		rec.CustomerName = s.customers[*sale.CustomerID].Name
	}
	for _, item := range sale.Items {
		p := s.products[item.ProductID]
		rec.Items = append(rec.Items, domain.SaleRecordItem{
			ProductID:   item.ProductID,
			ProductName: p.Name,
			Category:    p.Category,
			Quantity:    item.Quantity,
			Price:       item.Price,
			CostPrice:   p.CostPrice.Decimal,
		})
	}
	return rec
}

func matchesFilter(sale domain.Sale, f store.SaleFilter) bool {
	if !f.From.IsZero() && sale.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !sale.CreatedAt.Before(f.To) {
		return false
	}
	if f.Status != "" && sale.Status != f.Status {
		return false
	}
	if f.SellerID != "" && sale.UserID != f.SellerID {
		return false
	}
	return true
}

// compareDue orders nil times last.
func compareDue(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(a.UnixNano(), b.UnixNano())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}
