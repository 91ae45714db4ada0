package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SignupRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type SignupResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

type ResendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyRequest struct {
	Token string `json:"token" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type UserView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Role           string     `json:"role"`
	IsSuperAdmin   bool       `json:"is_super_admin"`
	AvatarURL      string     `json:"avatar_url"`
	Plan           string     `json:"plan,omitempty"`
	StoreCreatedAt *time.Time `json:"store_created_at,omitempty"`
}

type LoginResponse struct {
	User    UserView `json:"user"`
	Token   string   `json:"token"`
	StoreID string   `json:"store_id,omitempty"`
}

type StoreRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MeResponse struct {
	User  UserView  `json:"user"`
	Store *StoreRef `json:"store"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type UpdateProfileRequest struct {
	Name string `json:"name" validate:"required,min=2,max=255"`
}

type StoreRequest struct {
	Name string `json:"name" validate:"required,min=2,max=255"`
}

type StoreCreatedResponse struct {
	Store Store  `json:"store"`
	Token string `json:"token"`
}

type TeamMemberCreateRequest struct {
	Name              string `json:"name" validate:"required,min=2,max=255"`
	Email             string `json:"email" validate:"required,email"`
	Password          string `json:"password" validate:"required,min=8"`
	Role              string `json:"role" validate:"omitempty,oneof=SELLER MANAGER"`
	CanSell           *bool  `json:"can_sell"`
	CanManageProducts *bool  `json:"can_manage_products"`
}

type TeamMemberUpdateRequest struct {
	Role              string `json:"role" validate:"omitempty,oneof=SELLER MANAGER"`
	CanSell           *bool  `json:"can_sell"`
	CanManageProducts *bool  `json:"can_manage_products"`
}

type ProductCreateRequest struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Price       decimal.Decimal  `json:"price"`
	CostPrice   *decimal.Decimal `json:"cost_price"`
	Stock       int              `json:"stock" validate:"min=0"`
	Description string           `json:"description" validate:"max=1000"`
	Category    string           `json:"category" validate:"max=100"`
	ImageURL    string           `json:"image_url" validate:"omitempty,url"`
}

type ProductUpdateRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Price       *decimal.Decimal `json:"price"`
	CostPrice   *decimal.Decimal `json:"cost_price"`
	Stock       *int             `json:"stock" validate:"omitempty,min=0"`
	Description *string          `json:"description" validate:"omitempty,max=1000"`
	Category    *string          `json:"category" validate:"omitempty,max=100"`
	ImageURL    *string          `json:"image_url" validate:"omitempty,url"`
}

type StockEntryRequest struct {
	ProductID    string           `json:"product_id" validate:"required"`
	Quantity     int              `json:"quantity" validate:"required,gt=0"`
	Type         string           `json:"type" validate:"omitempty,oneof=ENTRY LOSS"`
	NewCostPrice *decimal.Decimal `json:"new_cost_price"`
	Reason       string           `json:"reason" validate:"max=500"`
}

type StockEntryResponse struct {
	Product Product    `json:"product"`
	Entry   StockEntry `json:"entry"`
}

type SaleLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type SaleRequest struct {
	Items         []SaleLine `json:"items" validate:"required,min=1,dive"`
	CustomerID    *string    `json:"customer_id"`
	PaymentMethod string     `json:"payment_method" validate:"omitempty,oneof=MONEY CARD PIX CREDIT_STORE"`
}

type CustomerRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=255"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=20"`
	CPF     string `json:"cpf" validate:"max=20"`
	Address string `json:"address" validate:"max=500"`
}

type CashOpenRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type CashMovementRequest struct {
	Type        string          `json:"type" validate:"required,oneof=SUPPLY BLEED"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description" validate:"max=255"`
}

type CashCloseRequest struct {
	CountedMoney decimal.Decimal `json:"counted_money"`
}

type CashStatusResponse struct {
	Status   string         `json:"status"`
	Session  *CashSession   `json:"session,omitempty"`
	Bleeds   []CashMovement `json:"bleeds"`
	Supplies []CashMovement `json:"supplies"`
}

type CashCloseResponse struct {
	Session  CashSession     `json:"session"`
	Expected decimal.Decimal `json:"expected"`
}

type CashSummaryResponse struct {
	Date    string                     `json:"date"`
	Total   decimal.Decimal            `json:"total"`
	Count   int                        `json:"count"`
	Methods map[string]decimal.Decimal `json:"methods"`
}

type CashHistoryEntry struct {
	ID             string          `json:"id"`
	Date           time.Time       `json:"date"`
	Operator       string          `json:"operator"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Revenue        decimal.Decimal `json:"revenue"`
	TotalSupply    decimal.Decimal `json:"total_supply"`
	TotalBleed     decimal.Decimal `json:"total_bleed"`
	Expected       decimal.Decimal `json:"expected"`
	Counted        decimal.Decimal `json:"counted"`
	Difference     decimal.Decimal `json:"difference"`
}

type ExpenseRequest struct {
	Description string          `json:"description" validate:"required,max=255"`
	Category    string          `json:"category" validate:"max=100"`
	Value       decimal.Decimal `json:"value"`
	DueDate     time.Time       `json:"due_date" validate:"required"`
	Paid        bool            `json:"paid"`
	RepeatCount int             `json:"repeat_count" validate:"omitempty,min=1,max=60"`
}

type CheckoutRequest struct {
	PlanType string `json:"plan_type" validate:"required,oneof=monthly yearly"`
}

type CheckoutResponse struct {
	PreferenceID string `json:"preference_id"`
	InitPoint    string `json:"init_point"`
}

type PaymentWebhook struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ExpenseCreatedResponse struct {
	Message  string    `json:"message"`
	Count    int       `json:"count"`
	Expenses []Expense `json:"expenses"`
}

type AdminMetrics struct {
	TotalStores int             `json:"total_stores"`
	TotalUsers  int             `json:"total_users"`
	ProCount    int             `json:"pro_count"`
	MRR         decimal.Decimal `json:"mrr"`
}

type AdminDashboard struct {
	Metrics AdminMetrics `json:"metrics"`
	Stores  []StoreStats `json:"stores"`
}
