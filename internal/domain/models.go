package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	PlanFree = "FREE"
	PlanPro  = "PRO"

	RoleOwner   = "OWNER"
	RoleManager = "MANAGER"
	RoleSeller  = "SELLER"
	// RoleUser is the token role of an account without a store.
	RoleUser = "USER"

	PaymentMoney       = "MONEY"
	PaymentCard        = "CARD"
	PaymentPix         = "PIX"
	PaymentCreditStore = "CREDIT_STORE"

	SaleStatusPaid    = "PAID"
	SaleStatusPending = "PENDING"

	StockEntryEntry = "ENTRY"
	StockEntryLoss  = "LOSS"
	StockEntrySale  = "SALE"

	CashStatusOpen   = "OPEN"
	CashStatusClosed = "CLOSED"

	MovementSupply = "SUPPLY"
	MovementBleed  = "BLEED"

	DefaultCategory     = "Geral"
	DefaultOperatorName = "Sistema"
	LowStockThreshold   = 5
	CreditStoreTermDays = 30
)

var PaymentMethods = []string{PaymentMoney, PaymentCard, PaymentPix, PaymentCreditStore}

type Store struct {
	ID                    string     `json:"id" db:"id"`
	Name                  string     `json:"name" db:"name"`
	Plan                  string     `json:"plan" db:"plan"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty" db:"subscription_expires_at"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
}

type User struct {
	ID                string    `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	Email             string    `json:"email" db:"email"`
	PasswordHash      string    `json:"-" db:"password_hash"`
	IsVerified        bool      `json:"is_verified" db:"is_verified"`
	VerificationToken *string   `json:"-" db:"verification_token"`
	IsSuperAdmin      bool      `json:"is_super_admin" db:"is_super_admin"`
	AvatarURL         string    `json:"avatar_url" db:"avatar_url"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Membership binds a user to the one store they work in.
type Membership struct {
	ID                string    `json:"id" db:"id"`
	UserID            string    `json:"user_id" db:"user_id"`
	StoreID           string    `json:"store_id" db:"store_id"`
	Role              string    `json:"role" db:"role"`
	CanSell           bool      `json:"can_sell" db:"can_sell"`
	CanManageProducts bool      `json:"can_manage_products" db:"can_manage_products"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

type Product struct {
	ID          string              `json:"id" db:"id"`
	StoreID     string              `json:"store_id" db:"store_id"`
	Name        string              `json:"name" db:"name"`
	Description string              `json:"description" db:"description"`
	Category    string              `json:"category" db:"category"`
	ImageURL    string              `json:"image_url" db:"image_url"`
	Price       decimal.Decimal     `json:"price" db:"price"`
	CostPrice   decimal.NullDecimal `json:"cost_price" db:"cost_price"`
	Stock       int                 `json:"stock" db:"stock"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" db:"updated_at"`
}

type Customer struct {
	ID         string    `json:"id" db:"id"`
	StoreID    string    `json:"store_id" db:"store_id"`
	Name       string    `json:"name" db:"name"`
	Email      *string   `json:"email" db:"email"`
	Phone      *string   `json:"phone" db:"phone"`
	CPF        *string   `json:"cpf" db:"cpf"`
	Address    *string   `json:"address" db:"address"`
	SalesCount int       `json:"sales_count" db:"sales_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Sale struct {
	ID            string          `json:"id" db:"id"`
	StoreID       string          `json:"store_id" db:"store_id"`
	UserID        string          `json:"user_id" db:"user_id"`
	CustomerID    *string         `json:"customer_id" db:"customer_id"`
	Total         decimal.Decimal `json:"total" db:"total"`
	PaymentMethod string          `json:"payment_method" db:"payment_method"`
	Status        string          `json:"status" db:"status"`
	DueDate       *time.Time      `json:"due_date" db:"due_date"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	SellerName    string          `json:"seller_name,omitempty" db:"seller_name"`
	CustomerName  string          `json:"customer_name,omitempty" db:"customer_name"`
	CustomerPhone string          `json:"customer_phone,omitempty" db:"customer_phone"`
	Items         []SaleItem      `json:"items" db:"-"`
}

type SaleItem struct {
	ID          string          `json:"id" db:"id"`
	SaleID      string          `json:"sale_id" db:"sale_id"`
	ProductID   string          `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name,omitempty" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
}

func (i SaleItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type StockEntry struct {
	ID          string    `json:"id" db:"id"`
	StoreID     string    `json:"store_id" db:"store_id"`
	ProductID   string    `json:"product_id" db:"product_id"`
	ProductName string    `json:"product_name,omitempty" db:"product_name"`
	UserID      string    `json:"user_id" db:"user_id"`
	Type        string    `json:"type" db:"entry_type"`
	Quantity    int       `json:"quantity" db:"quantity"`
	OldStock    int       `json:"old_stock" db:"old_stock"`
	NewStock    int       `json:"new_stock" db:"new_stock"`
	Reason      string    `json:"reason" db:"reason"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type CashSession struct {
	ID             string          `json:"id" db:"id"`
	StoreID        string          `json:"store_id" db:"store_id"`
	UserID         string          `json:"user_id" db:"user_id"`
	Operator       string          `json:"operator" db:"operator"`
	Status         string          `json:"status" db:"status"`
	OpeningBalance decimal.Decimal `json:"opening_balance" db:"opening_balance"`
	TotalRevenue   decimal.Decimal `json:"total_revenue" db:"total_revenue"`
	TotalBleed     decimal.Decimal `json:"total_bleed" db:"total_bleed"`
	TotalSupply    decimal.Decimal `json:"total_supply" db:"total_supply"`
	CountedMoney   decimal.Decimal `json:"counted_money" db:"counted_money"`
	Difference     decimal.Decimal `json:"difference" db:"difference"`
	OpenedAt       time.Time       `json:"opened_at" db:"opened_at"`
	ClosedAt       *time.Time      `json:"closed_at" db:"closed_at"`
	Movements      []CashMovement  `json:"movements,omitempty" db:"-"`
}

// Expected is the drawer balance implied by the stored components.
func (s CashSession) Expected() decimal.Decimal {
	return s.OpeningBalance.Add(s.TotalRevenue).Add(s.TotalSupply).Sub(s.TotalBleed)
}

// Reconcile fills the closing figures from the session movements, the cash
// revenue of the day and the physically counted amount.
func (s *CashSession) Reconcile(revenue, counted decimal.Decimal) {
	supplies, bleeds := decimal.Zero, decimal.Zero
	for _, mv := range s.Movements {
		switch mv.Type {
		case MovementSupply:
			supplies = supplies.Add(mv.Value)
		case MovementBleed:
			bleeds = bleeds.Add(mv.Value)
		}
	}
	s.TotalSupply = supplies
	s.TotalBleed = bleeds
	s.TotalRevenue = revenue
	s.CountedMoney = counted
	s.Difference = counted.Sub(s.Expected())
}

type CashMovement struct {
	ID          string          `json:"id" db:"id"`
	SessionID   string          `json:"session_id" db:"session_id"`
	Type        string          `json:"type" db:"movement_type"`
	Value       decimal.Decimal `json:"value" db:"value"`
	Description string          `json:"description" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type Expense struct {
	ID          string          `json:"id" db:"id"`
	StoreID     string          `json:"store_id" db:"store_id"`
	Description string          `json:"description" db:"description"`
	Category    string          `json:"category" db:"category"`
	Value       decimal.Decimal `json:"value" db:"value"`
	DueDate     time.Time       `json:"due_date" db:"due_date"`
	Paid        bool            `json:"paid" db:"paid"`
	PaidAt      *time.Time      `json:"paid_at" db:"paid_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// SaleRecord is the flattened view of a sale used by the reporting layer.
type SaleRecord struct {
	SaleID        string
	SellerID      string
	SellerName    string
	CustomerID    string
	CustomerName  string
	PaymentMethod string
	Status        string
	Total         decimal.Decimal
	CreatedAt     time.Time
	Items         []SaleRecordItem
}

type SaleRecordItem struct {
	ProductID   string
	ProductName string
	Category    string
	Quantity    int
	Price       decimal.Decimal
	CostPrice   decimal.Decimal
}

// StoreStats backs the super-admin dashboard.
type StoreStats struct {
	Store
	OwnerName    string `json:"owner_name" db:"owner_name"`
	OwnerEmail   string `json:"owner_email" db:"owner_email"`
	ProductCount int    `json:"products" db:"product_count"`
	SaleCount    int    `json:"sales" db:"sale_count"`
	UserCount    int    `json:"users" db:"user_count"`
}

// TeamMember is a membership joined with the member's account.
type TeamMember struct {
	ID                string `json:"id" db:"id"`
	UserID            string `json:"user_id" db:"user_id"`
	Name              string `json:"name" db:"name"`
	Email             string `json:"email" db:"email"`
	Role              string `json:"role" db:"role"`
	CanSell           bool   `json:"can_sell" db:"can_sell"`
	CanManageProducts bool   `json:"can_manage_products" db:"can_manage_products"`
}

// Actor is the authenticated caller of one request with its store membership
// resolved. StoreID is empty for accounts without a store.
type Actor struct {
	UserID            string
	Name              string
	Email             string
	IsSuperAdmin      bool
	StoreID           string
	MembershipID      string
	Role              string
	CanSell           bool
	CanManageProducts bool
}

func (a Actor) HasStore() bool { return a.StoreID != "" }
