package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/cache"
	"stoqplus/backend/internal/domain"
	"stoqplus/backend/internal/payments"
	"stoqplus/backend/internal/reporting"
	"stoqplus/backend/internal/store"
	"stoqplus/backend/internal/store/memory"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type stubCredentials struct{}

func (stubCredentials) IssueToken(userID string, role string, storeID string) (string, error) {
	return strings.Join([]string{"token", userID, role, storeID}, ":"), nil
}

func (stubCredentials) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(hash), err
}

func (stubCredentials) ComparePassword(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type sentMail struct {
	to    string
	token string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendVerification(_ context.Context, to string, _ string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, token: token})
	return nil
}

func (m *recordingMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type fakeGateway struct {
	payment *payments.Payment
}

func (g *fakeGateway) CreatePreference(_ context.Context, req payments.PreferenceRequest) (*payments.Preference, error) {
	return &payments.Preference{ID: "pref-" + req.PlanType, InitPoint: "https://mp.test/" + req.StoreID}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*payments.Payment, error) {
	if g.payment == nil || g.payment.ID != id {
		return nil, errors.New("payment not found")
	}
	return g.payment, nil
}

type fixture struct {
	svc     *Service
	repo    *memory.Store
	mailer  *recordingMailer
	gateway *fakeGateway
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	t.Setenv("SEED_DEMO_PASSWORD", "Demo#2026pass")
	repo := memory.NewSeeded()
	mail := &recordingMailer{}
	gateway := &fakeGateway{}
	svc := New(repo, stubCredentials{}, Options{
		Reports:  reporting.NewEngine(cache.NewMemory(), time.Minute),
		Mailer:   mail,
		Payments: gateway,
		Now:      func() time.Time { return testNow },
	})
	return fixture{svc: svc, repo: repo, mailer: mail, gateway: gateway}
}

func (f fixture) actorCtx(t *testing.T, email string) context.Context {
	t.Helper()
	user, err := f.repo.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	actor, err := f.svc.ResolveActor(context.Background(), user.ID)
	require.NoError(t, err)
	return WithActor(context.Background(), actor)
}

func (f fixture) ownerCtx(t *testing.T) context.Context {
	return f.actorCtx(t, memory.DemoOwnerEmail)
}

func (f fixture) sellerCtx(t *testing.T) context.Context {
	return f.actorCtx(t, memory.DemoSellerEmail)
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.CodeOf(err), "unexpected error %v", err)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func productStock(t *testing.T, f fixture, id string) int {
	t.Helper()
	p, err := f.repo.GetProduct(context.Background(), memory.DemoStoreID, id)
	require.NoError(t, err)
	return p.Stock
}

func TestResolveActorWithoutStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.CreateUser(ctx, domain.User{ID: "u-1", Name: "Solo", Email: "solo@example.com", IsVerified: true}))

	actor, err := f.svc.ResolveActor(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, actor.Role)
	assert.False(t, actor.HasStore())

	_, err = f.svc.ResolveActor(ctx, "missing")
	requireCode(t, err, apperr.CodeUnauthorized)
}

func TestUnauthenticatedContextIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListProducts(context.Background())
	requireCode(t, err, apperr.CodeUnauthorized)
}

func requireReason(t *testing.T, err error, code apperr.Code, reason string) {
	t.Helper()
	requireCode(t, err, code)
	assert.Equal(t, reason, apperr.As(err).Reason())
}

func TestCreateSaleFreezesCatalogueTotal(t *testing.T) {
	f := newFixture(t)
	ctx := f.sellerCtx(t)

	sale, err := f.svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleLine{
		{ProductID: "product-demo-a", Quantity: 2},
		{ProductID: "product-demo-b", Quantity: 3},
	}})
	require.NoError(t, err)

	// 2 x 27.90 + 3 x 8.49
	assert.True(t, dec("81.27").Equal(sale.Total), "total %s", sale.Total)
	assert.Equal(t, domain.PaymentMoney, sale.PaymentMethod)
	assert.Equal(t, domain.SaleStatusPaid, sale.Status)
	assert.Nil(t, sale.DueDate)
	assert.Equal(t, 38, productStock(t, f, "product-demo-a"))
	assert.Equal(t, 57, productStock(t, f, "product-demo-b"))

	// A later price change leaves the recorded sale alone.
	newPrice := dec("99.00")
	_, err = f.svc.UpdateProduct(f.ownerCtx(t), "product-demo-a", domain.ProductUpdateRequest{Price: &newPrice})
	require.NoError(t, err)
	records, err := f.repo.ListSaleRecords(context.Background(), memory.DemoStoreID, store.SaleFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, dec("81.27").Equal(records[0].Total))
}

func TestCreateSaleOversellLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := f.sellerCtx(t)
	before, err := f.repo.ListStockEntries(context.Background(), memory.DemoStoreID, 0)
	require.NoError(t, err)

	_, err = f.svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleLine{
		{ProductID: "product-demo-a", Quantity: 1},
		{ProductID: "product-demo-d", Quantity: 5},
	}})
	requireReason(t, err, apperr.CodeDomain, "INSUFFICIENT_STOCK")

	assert.Equal(t, 40, productStock(t, f, "product-demo-a"))
	assert.Equal(t, 4, productStock(t, f, "product-demo-d"))
	after, err := f.repo.ListStockEntries(context.Background(), memory.DemoStoreID, 0)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	records, err := f.repo.ListSaleRecords(context.Background(), memory.DemoStoreID, store.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCreateSaleOnStoreCredit(t *testing.T) {
	f := newFixture(t)
	owner := f.ownerCtx(t)
	customer, err := f.svc.CreateCustomer(owner, domain.CustomerRequest{Name: "Maria Silva", Phone: "11999990000"})
	require.NoError(t, err)

	sale, err := f.svc.CreateSale(f.sellerCtx(t), domain.SaleRequest{
		Items:         []domain.SaleLine{{ProductID: "product-demo-c", Quantity: 1}},
		CustomerID:    &customer.ID,
		PaymentMethod: domain.PaymentCreditStore,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusPending, sale.Status)
	require.NotNil(t, sale.DueDate)
	assert.Equal(t, testNow.AddDate(0, 0, domain.CreditStoreTermDays), *sale.DueDate)

	debts, err := f.svc.ListDebts(owner)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.Equal(t, sale.ID, debts[0].ID)

	_, err = f.svc.PayDebt(owner, sale.ID)
	require.NoError(t, err)
	debts, err = f.svc.ListDebts(owner)
	require.NoError(t, err)
	assert.Empty(t, debts)

	_, err = f.svc.PayDebt(owner, sale.ID)
	requireCode(t, err, apperr.CodeNotFound)

	missing := "nope"
	_, err = f.svc.CreateSale(owner, domain.SaleRequest{
		Items:      []domain.SaleLine{{ProductID: "product-demo-c", Quantity: 1}},
		CustomerID: &missing,
	})
	requireCode(t, err, apperr.CodeNotFound)
}

func TestCreateSaleRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := f.sellerCtx(t)

	_, err := f.svc.CreateSale(ctx, domain.SaleRequest{})
	requireCode(t, err, apperr.CodeValidation)
	_, err = f.svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "product-demo-a", Quantity: 0}}})
	requireCode(t, err, apperr.CodeValidation)
	_, err = f.svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "product-demo-a", Quantity: 1}}, PaymentMethod: "BARTER"})
	requireCode(t, err, apperr.CodeValidation)
}

func TestOpenCashKeepsSingleOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := f.ownerCtx(t)

	first, err := f.svc.OpenCash(ctx, domain.CashOpenRequest{OpeningBalance: dec("50")})
	require.NoError(t, err)
	second, err := f.svc.OpenCash(ctx, domain.CashOpenRequest{OpeningBalance: dec("80")})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "Dona Demo", second.Operator)

	status, err := f.svc.CashStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CashStatusOpen, status.Status)
	require.NotNil(t, status.Session)
	assert.Equal(t, second.ID, status.Session.ID)

	open, err := f.repo.GetOpenCashSession(context.Background(), memory.DemoStoreID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, open.ID)

	_, err = f.svc.ResetCash(ctx)
	require.NoError(t, err)
	status, err = f.svc.CashStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CashStatusClosed, status.Status)
	assert.NotNil(t, status.Bleeds)
	assert.NotNil(t, status.Supplies)
}

func TestCloseCashReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := f.ownerCtx(t)

	product, err := f.svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Cesta básica", Price: dec("100"), Stock: 10})
	require.NoError(t, err)

	_, err = f.svc.OpenCash(ctx, domain.CashOpenRequest{OpeningBalance: dec("100")})
	require.NoError(t, err)
	_, err = f.svc.AddCashMovement(ctx, domain.CashMovementRequest{Type: domain.MovementSupply, Value: dec("50")})
	require.NoError(t, err)
	_, err = f.svc.AddCashMovement(ctx, domain.CashMovementRequest{Type: domain.MovementBleed, Value: dec("20"), Description: "troco"})
	require.NoError(t, err)
	_, err = f.svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: product.ID, Quantity: 3}}})
	require.NoError(t, err)
	_, err = f.svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: product.ID, Quantity: 1}}, PaymentMethod: domain.PaymentPix})
	require.NoError(t, err)

	summary, err := f.svc.CashSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", summary.Date)
	assert.Equal(t, 2, summary.Count)
	assert.True(t, dec("400").Equal(summary.Total))
	assert.True(t, dec("300").Equal(summary.Methods[domain.PaymentMoney]))
	assert.True(t, dec("100").Equal(summary.Methods[domain.PaymentPix]))
	assert.True(t, summary.Methods[domain.PaymentCard].IsZero())

	closed, err := f.svc.CloseCash(ctx, domain.CashCloseRequest{CountedMoney: dec("430")})
	require.NoError(t, err)
	assert.True(t, dec("430").Equal(closed.Expected), "expected %s", closed.Expected)
	assert.True(t, dec("300").Equal(closed.Session.TotalRevenue))
	assert.True(t, dec("50").Equal(closed.Session.TotalSupply))
	assert.True(t, dec("20").Equal(closed.Session.TotalBleed))
	assert.True(t, closed.Session.Difference.IsZero())
	assert.Equal(t, domain.CashStatusClosed, closed.Session.Status)

	history, err := f.svc.CashHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, dec("430").Equal(history[0].Expected))

	_, err = f.svc.CloseCash(ctx, domain.CashCloseRequest{CountedMoney: dec("430")})
	requireReason(t, err, apperr.CodeDomain, "NO_OPEN_SESSION")
}

func TestCashMovementNeedsOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := f.ownerCtx(t)

	_, err := f.svc.AddCashMovement(ctx, domain.CashMovementRequest{Type: domain.MovementSupply, Value: dec("10")})
	requireReason(t, err, apperr.CodeDomain, "NO_OPEN_SESSION")

	_, err = f.svc.OpenCash(ctx, domain.CashOpenRequest{OpeningBalance: dec("0")})
	require.NoError(t, err)
	_, err = f.svc.AddCashMovement(ctx, domain.CashMovementRequest{Type: domain.MovementBleed, Value: dec("0")})
	requireCode(t, err, apperr.CodeValidation)
}

func TestStockEntryLedger(t *testing.T) {
	f := newFixture(t)
	ctx := f.ownerCtx(t)

	cost := dec("20.00")
	resp, err := f.svc.ApplyStockEntry(ctx, domain.StockEntryRequest{ProductID: "product-demo-c", Quantity: 10, NewCostPrice: &cost})
	require.NoError(t, err)
	assert.Equal(t, domain.StockEntryEntry, resp.Entry.Type)
	assert.Equal(t, 25, resp.Entry.OldStock)
	assert.Equal(t, 35, resp.Entry.NewStock)
	assert.Equal(t, 35, resp.Product.Stock)
	assert.True(t, cost.Equal(resp.Product.CostPrice.Decimal))

	resp, err = f.svc.ApplyStockEntry(ctx, domain.StockEntryRequest{ProductID: "product-demo-d", Quantity: 6, Type: domain.StockEntryLoss, Reason: "avaria"})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Entry.OldStock)
	assert.Equal(t, -2, resp.Entry.NewStock)
	assert.Equal(t, -2, productStock(t, f, "product-demo-d"))

	history, err := f.svc.StockHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, e := range history {
		switch e.Type {
		case domain.StockEntryEntry:
			assert.Equal(t, e.OldStock+e.Quantity, e.NewStock)
		case domain.StockEntryLoss:
			assert.Equal(t, e.OldStock-e.Quantity, e.NewStock)
		}
	}

	_, err = f.svc.ApplyStockEntry(f.sellerCtx(t), domain.StockEntryRequest{ProductID: "product-demo-c", Quantity: 1})
	requireCode(t, err, apperr.CodeForbidden)
}

func TestUpdateProductStockGoesThroughLedger(t *testing.T) {
	f := newFixture(t)
	ctx := f.ownerCtx(t)

	stock := 30
	product, err := f.svc.UpdateProduct(ctx, "product-demo-a", domain.ProductUpdateRequest{Stock: &stock})
	require.NoError(t, err)
	assert.Equal(t, 30, product.Stock)

	entries, err := f.repo.ListStockEntries(context.Background(), memory.DemoStoreID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StockEntryLoss, entries[0].Type)
	assert.Equal(t, 10, entries[0].Quantity)
	assert.Equal(t, 40, entries[0].OldStock)
	assert.Equal(t, 30, entries[0].NewStock)
}

func TestDeleteProductWithSalesConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := f.ownerCtx(t)

	_, err := f.svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "product-demo-b", Quantity: 1}}})
	require.NoError(t, err)
	requireReason(t, f.svc.DeleteProduct(ctx, "product-demo-b"), apperr.CodeConflict, "PRODUCT_HAS_HISTORY")
	require.NoError(t, f.svc.DeleteProduct(ctx, "product-demo-c"))
	requireCode(t, f.svc.DeleteProduct(ctx, "product-demo-c"), apperr.CodeNotFound)
}

func TestDeleteProductKeepsLedgerRows(t *testing.T) {
	f := newFixture(t)
	ctx := f.ownerCtx(t)

	product, err := f.svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Café 500g", Price: dec("18.90")})
	require.NoError(t, err)
	_, err = f.svc.ApplyStockEntry(ctx, domain.StockEntryRequest{ProductID: product.ID, Quantity: 5})
	require.NoError(t, err)

	requireReason(t, f.svc.DeleteProduct(ctx, product.ID), apperr.CodeConflict, "PRODUCT_HAS_HISTORY")

	entries, err := f.repo.ListStockEntries(context.Background(), memory.DemoStoreID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, product.ID, entries[0].ProductID)
	assert.Equal(t, 5, productStock(t, f, product.ID))
}

func TestCreateProductDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := f.ownerCtx(t)

	product, err := f.svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Leite 1L", Price: dec("5.49")})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCategory, product.Category)
	assert.Equal(t, memory.DemoStoreID, product.StoreID)

	_, err = f.svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Leite", Price: dec("-1")})
	requireCode(t, err, apperr.CodeValidation)
	_, err = f.svc.CreateProduct(f.sellerCtx(t), domain.ProductCreateRequest{Name: "Leite", Price: dec("1")})
	requireCode(t, err, apperr.CodeForbidden)
}

func TestDeleteCustomerWithSalesConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := f.ownerCtx(t)

	customer, err := f.svc.CreateCustomer(ctx, domain.CustomerRequest{Name: "João Souza"})
	require.NoError(t, err)
	_, err = f.svc.CreateSale(ctx, domain.SaleRequest{
		Items:      []domain.SaleLine{{ProductID: "product-demo-a", Quantity: 1}},
		CustomerID: &customer.ID,
	})
	require.NoError(t, err)

	requireReason(t, f.svc.DeleteCustomer(ctx, customer.ID), apperr.CodeConflict, "CUSTOMER_HAS_SALES")

	history, err := f.svc.CustomerHistory(ctx, customer.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	other, err := f.svc.CreateCustomer(ctx, domain.CustomerRequest{Name: "Ana Lima"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteCustomer(ctx, other.ID))
}

func TestSignupVerifyLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := domain.SignupRequest{Name: "Carla", Email: " Carla@Example.com ", Password: "Str0ng!pass"}

	resp, err := f.svc.Signup(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "carla@example.com", resp.Email)
	first := f.mailer.last()
	assert.Equal(t, "carla@example.com", first.to)
	assert.Len(t, first.token, 64)

	_, err = f.svc.Signup(ctx, req)
	requireReason(t, err, apperr.CodeConflict, "EMAIL_NOT_VERIFIED_YET")

	_, err = f.svc.Login(ctx, domain.LoginRequest{Email: req.Email, Password: req.Password})
	requireReason(t, err, apperr.CodeForbidden, "EMAIL_NOT_VERIFIED")

	_, err = f.svc.ResendCode(ctx, domain.ResendCodeRequest{Email: req.Email})
	require.NoError(t, err)
	second := f.mailer.last()
	assert.NotEqual(t, first.token, second.token)

	_, err = f.svc.Verify(ctx, first.token)
	requireReason(t, err, apperr.CodeDomain, "INVALID_TOKEN")
	_, err = f.svc.Verify(ctx, second.token)
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, second.token)
	requireReason(t, err, apperr.CodeDomain, "INVALID_TOKEN")

	_, err = f.svc.ResendCode(ctx, domain.ResendCodeRequest{Email: req.Email})
	requireReason(t, err, apperr.CodeDomain, "ALREADY_VERIFIED")
	_, err = f.svc.Signup(ctx, req)
	requireCode(t, err, apperr.CodeConflict)

	_, err = f.svc.Login(ctx, domain.LoginRequest{Email: req.Email, Password: "Wr0ng!pass"})
	requireCode(t, err, apperr.CodeUnauthorized)
	_, err = f.svc.Login(ctx, domain.LoginRequest{Email: "nobody@example.com", Password: req.Password})
	requireCode(t, err, apperr.CodeUnauthorized)

	login, err := f.svc.Login(ctx, domain.LoginRequest{Email: req.Email, Password: req.Password})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, login.User.Role)
	assert.Empty(t, login.StoreID)
	assert.Equal(t, "token:"+login.User.ID+":USER:", login.Token)
}

func TestSignupMailFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")
	_, err := f.svc.Signup(context.Background(), domain.SignupRequest{Name: "Rui", Email: "rui@example.com", Password: "Str0ng!pass"})
	requireCode(t, err, apperr.CodeInternal)
}

func TestValidatePassword(t *testing.T) {
	for _, pw := range []string{"short!A1", "Str0ng!pass", "Aa1@aaaa"} {
		assert.NoError(t, ValidatePassword(pw), pw)
	}
	for _, pw := range []string{"Ab1!", "alllower1!", "ALLUPPER1!", "NoDigits!!", "NoSpecial11"} {
		requireCode(t, ValidatePassword(pw), apperr.CodeValidation)
	}

	f := newFixture(t)
	_, err := f.svc.Signup(context.Background(), domain.SignupRequest{Name: "Weak", Email: "weak@example.com", Password: "password"})
	requireCode(t, err, apperr.CodeValidation)
	assert.Empty(t, f.mailer.sent)
}

func TestCreateStoreOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.CreateUser(ctx, domain.User{ID: "u-new", Name: "Nova", Email: "nova@example.com", IsVerified: true}))
	actor, err := f.svc.ResolveActor(ctx, "u-new")
	require.NoError(t, err)
	actx := WithActor(ctx, actor)

	created, err := f.svc.CreateStore(actx, domain.StoreRequest{Name: "Mercadinho da Nova"})
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, created.Store.Plan)
	assert.Equal(t, "token:u-new:OWNER:"+created.Store.ID, created.Token)

	actor, err = f.svc.ResolveActor(ctx, "u-new")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, actor.Role)
	assert.Equal(t, created.Store.ID, actor.StoreID)

	_, err = f.svc.CreateStore(WithActor(ctx, actor), domain.StoreRequest{Name: "Outra"})
	requireCode(t, err, apperr.CodeForbidden)
}

func TestSellerCannotManageTeamOrStore(t *testing.T) {
	f := newFixture(t)
	seller := f.sellerCtx(t)
	owner := f.ownerCtx(t)

	teamBefore, err := f.svc.ListTeam(owner)
	require.NoError(t, err)

	_, err = f.svc.CreateMember(seller, domain.TeamMemberCreateRequest{Name: "Intruso", Email: "x@example.com", Password: "Str0ng!pass"})
	requireCode(t, err, apperr.CodeForbidden)
	requireCode(t, f.svc.RemoveMember(seller, teamBefore[0].ID), apperr.CodeForbidden)
	_, err = f.svc.DeleteStore(seller)
	requireCode(t, err, apperr.CodeForbidden)
	_, err = f.svc.Checkout(seller, domain.CheckoutRequest{PlanType: payments.PlanMonthly})
	requireCode(t, err, apperr.CodeForbidden)

	teamAfter, err := f.svc.ListTeam(owner)
	require.NoError(t, err)
	assert.Equal(t, teamBefore, teamAfter)
	_, err = f.repo.GetStore(context.Background(), memory.DemoStoreID)
	require.NoError(t, err)
	_, err = f.repo.GetUserByEmail(context.Background(), "x@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTeamLifecycle(t *testing.T) {
	f := newFixture(t)
	owner := f.ownerCtx(t)

	_, err := f.svc.CreateMember(owner, domain.TeamMemberCreateRequest{Name: "Gerente", Email: "gerente@example.com", Password: "Str0ng!pass", Role: domain.RoleManager})
	require.NoError(t, err)
	_, err = f.svc.CreateMember(owner, domain.TeamMemberCreateRequest{Name: "Gerente 2", Email: "gerente@example.com", Password: "Str0ng!pass"})
	requireCode(t, err, apperr.CodeConflict)
	_, err = f.svc.CreateMember(owner, domain.TeamMemberCreateRequest{Name: "Fraco", Email: "fraco@example.com", Password: "password1"})
	requireCode(t, err, apperr.CodeValidation)

	manager := f.actorCtx(t, "gerente@example.com")
	actor, _ := ActorFromContext(manager)
	assert.Equal(t, domain.RoleManager, actor.Role)
	assert.True(t, actor.CanSell)
	assert.True(t, actor.CanManageProducts)

	// Managers may add members but only the owner removes them.
	requireCode(t, f.svc.RemoveMember(manager, actor.MembershipID), apperr.CodeForbidden)

	ownerActor, _ := ActorFromContext(owner)
	requireCode(t, f.svc.RemoveMember(owner, ownerActor.MembershipID), apperr.CodeForbidden)

	canSell := false
	_, err = f.svc.UpdateMember(owner, actor.MembershipID, domain.TeamMemberUpdateRequest{CanSell: &canSell})
	require.NoError(t, err)
	actor = mustActor(t, f.actorCtx(t, "gerente@example.com"))
	assert.False(t, actor.CanSell)

	require.NoError(t, f.svc.RemoveMember(owner, actor.MembershipID))
	actor = mustActor(t, f.actorCtx(t, "gerente@example.com"))
	assert.False(t, actor.HasStore())
}

func TestTeamRejectsOwnerRole(t *testing.T) {
	f := newFixture(t)
	owner := f.ownerCtx(t)

	_, err := f.svc.CreateMember(owner, domain.TeamMemberCreateRequest{Name: "Dono 2", Email: "dono2@example.com", Password: "Str0ng!pass", Role: domain.RoleOwner})
	requireCode(t, err, apperr.CodeValidation)
	_, err = f.repo.GetUserByEmail(context.Background(), "dono2@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	seller := mustActor(t, f.sellerCtx(t))
	_, err = f.svc.UpdateMember(owner, seller.MembershipID, domain.TeamMemberUpdateRequest{Role: domain.RoleOwner})
	requireCode(t, err, apperr.CodeValidation)
	assert.Equal(t, domain.RoleSeller, mustActor(t, f.sellerCtx(t)).Role)
}

func mustActor(t *testing.T, ctx context.Context) domain.Actor {
	t.Helper()
	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	return actor
}

func TestPaymentNotificationActivatesPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gateway.payment = &payments.Payment{ID: "pay-1", Status: payments.StatusApproved, ExternalReference: memory.DemoStoreID + ":yearly", Amount: payments.YearlyPrice}
	hook := domain.PaymentWebhook{Type: "payment"}
	hook.Data.ID = "pay-1"
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, hook))

	st, err := f.repo.GetStore(ctx, memory.DemoStoreID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPro, st.Plan)
	require.NotNil(t, st.SubscriptionExpiresAt)
	assert.Equal(t, testNow.AddDate(0, 0, 365), *st.SubscriptionExpiresAt)
}

func TestPaymentNotificationInfersPlanFromAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gateway.payment = &payments.Payment{ID: "pay-2", Status: payments.StatusApproved, ExternalReference: memory.DemoStoreID, Amount: dec("49.90")}
	hook := domain.PaymentWebhook{Type: "payment"}
	hook.Data.ID = "pay-2"
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, hook))

	st, err := f.repo.GetStore(ctx, memory.DemoStoreID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPro, st.Plan)
	assert.Equal(t, testNow.AddDate(0, 0, 30), *st.SubscriptionExpiresAt)
}

func TestPaymentNotificationIgnoresOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gateway.payment = &payments.Payment{ID: "pay-3", Status: "pending", ExternalReference: memory.DemoStoreID + ":monthly"}
	hook := domain.PaymentWebhook{Type: "payment"}
	hook.Data.ID = "pay-3"
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, hook))
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, domain.PaymentWebhook{Type: "merchant_order"}))

	st, err := f.repo.GetStore(ctx, memory.DemoStoreID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, st.Plan)
	assert.Nil(t, st.SubscriptionExpiresAt)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.Checkout(f.ownerCtx(t), domain.CheckoutRequest{PlanType: payments.PlanYearly})
	require.NoError(t, err)
	assert.Equal(t, "pref-yearly", resp.PreferenceID)
	assert.Equal(t, "https://mp.test/"+memory.DemoStoreID, resp.InitPoint)

	disabled := New(f.repo, stubCredentials{}, Options{Now: func() time.Time { return testNow }})
	_, err = disabled.Checkout(f.ownerCtx(t), domain.CheckoutRequest{PlanType: payments.PlanYearly})
	requireReason(t, err, apperr.CodeDomain, "PAYMENTS_DISABLED")
}

func TestCreateExpenseInstallments(t *testing.T) {
	f := newFixture(t)
	ctx := f.ownerCtx(t)
	due := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	resp, err := f.svc.CreateExpenses(ctx, domain.ExpenseRequest{Description: "Aluguel", Value: dec("1200"), DueDate: due, Paid: true, RepeatCount: 3})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, "Aluguel (1/3)", resp.Expenses[0].Description)
	assert.Equal(t, "Aluguel (3/3)", resp.Expenses[2].Description)
	assert.Equal(t, due.AddDate(0, 1, 0), resp.Expenses[1].DueDate)
	assert.True(t, resp.Expenses[0].Paid)
	assert.NotNil(t, resp.Expenses[0].PaidAt)
	assert.False(t, resp.Expenses[1].Paid)
	assert.False(t, resp.Expenses[2].Paid)

	toggled, err := f.svc.ToggleExpense(ctx, resp.Expenses[1].ID)
	require.NoError(t, err)
	assert.True(t, toggled.Paid)
	require.NotNil(t, toggled.PaidAt)
	toggled, err = f.svc.ToggleExpense(ctx, resp.Expenses[1].ID)
	require.NoError(t, err)
	assert.False(t, toggled.Paid)
	assert.Nil(t, toggled.PaidAt)

	require.NoError(t, f.svc.DeleteExpense(ctx, resp.Expenses[2].ID))
	list, err := f.svc.ListExpenses(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.svc.ListExpenses(f.sellerCtx(t))
	requireCode(t, err, apperr.CodeForbidden)
}

func TestDashboardRefreshesAfterSale(t *testing.T) {
	f := newFixture(t)
	owner := f.ownerCtx(t)

	before, err := f.svc.Dashboard(owner, "")
	require.NoError(t, err)
	assert.Equal(t, reporting.Period7Days, before.Period)
	assert.Len(t, before.ChartData, 7)
	assert.True(t, before.Today.Revenue.IsZero())
	assert.Equal(t, 1, before.LowStockCount)

	_, err = f.svc.CreateSale(f.sellerCtx(t), domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "product-demo-a", Quantity: 2}}})
	require.NoError(t, err)

	after, err := f.svc.Dashboard(owner, reporting.Period7Days)
	require.NoError(t, err)
	assert.True(t, dec("55.8").Equal(after.Today.Revenue), "revenue %s", after.Today.Revenue)
	assert.Equal(t, 1, after.Today.Count)
	// cost 2 x 19.50
	assert.True(t, dec("16.8").Equal(after.Today.Profit), "profit %s", after.Today.Profit)
	require.Len(t, after.RecentSales, 1)
	assert.Equal(t, "Vendedor Demo", after.RecentSales[0].SellerName)

	_, err = f.svc.Dashboard(owner, "decade")
	requireCode(t, err, apperr.CodeValidation)
	_, err = f.svc.Dashboard(f.sellerCtx(t), "")
	requireCode(t, err, apperr.CodeForbidden)
}

func TestMyMetrics(t *testing.T) {
	f := newFixture(t)
	seller := f.sellerCtx(t)

	_, err := f.svc.CreateSale(seller, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "product-demo-b", Quantity: 2}}})
	require.NoError(t, err)
	_, err = f.svc.CreateSale(f.ownerCtx(t), domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "product-demo-b", Quantity: 1}}})
	require.NoError(t, err)

	metrics, err := f.svc.MyMetrics(seller)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.CountToday)
	assert.True(t, dec("16.98").Equal(metrics.RevenueToday))
	assert.Len(t, metrics.ChartData, 7)
	assert.Len(t, metrics.RecentSales, 1)
}

func TestAdminDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.EnsureSuperAdmin(ctx, "admin@stoqplus.app", "Adm1n!secret", "Admin"))
	// Idempotent.
	require.NoError(t, f.svc.EnsureSuperAdmin(ctx, "admin@stoqplus.app", "Adm1n!secret", "Admin"))

	admin := f.actorCtx(t, "admin@stoqplus.app")
	dash, err := f.svc.AdminDashboard(admin)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.Metrics.TotalStores)
	assert.Equal(t, 3, dash.Metrics.TotalUsers)
	assert.Equal(t, 1, dash.Metrics.ProCount)
	assert.True(t, payments.MonthlyPrice.Equal(dash.Metrics.MRR))

	_, err = f.svc.AdminDashboard(f.ownerCtx(t))
	requireCode(t, err, apperr.CodeForbidden)

	adminActor := mustActor(t, admin)
	_, err = f.svc.AdminDeleteStore(admin, adminActor.StoreID)
	requireCode(t, err, apperr.CodeDomain)

	_, err = f.svc.AdminDeleteStore(admin, memory.DemoStoreID)
	require.NoError(t, err)
	_, err = f.repo.GetStore(ctx, memory.DemoStoreID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.repo.GetUserByEmail(ctx, memory.DemoSellerEmail)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteMeRemovesOwnedStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.ownerCtx(t)

	_, err := f.svc.DeleteMe(owner)
	require.NoError(t, err)
	_, err = f.repo.GetStore(ctx, memory.DemoStoreID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.repo.GetUserByEmail(ctx, memory.DemoOwnerEmail)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The seller keeps the account but loses the store.
	seller := f.actorCtx(t, memory.DemoSellerEmail)
	assert.False(t, mustActor(t, seller).HasStore())
}

func TestUpdateProfileTrimsName(t *testing.T) {
	f := newFixture(t)
	ctx := f.sellerCtx(t)

	user, err := f.svc.UpdateProfile(ctx, domain.UpdateProfileRequest{Name: "  Vendedora Nova  "})
	require.NoError(t, err)
	assert.Equal(t, "Vendedora Nova", user.Name)

	stored, err := f.repo.GetUserByEmail(context.Background(), memory.DemoSellerEmail)
	require.NoError(t, err)
	assert.Equal(t, "Vendedora Nova", stored.Name)

	_, err = f.svc.UpdateProfile(context.Background(), domain.UpdateProfileRequest{Name: "Anon"})
	requireCode(t, err, apperr.CodeUnauthorized)
}

func TestFailedLoginWaitsFixedDelay(t *testing.T) {
	const delay = 200 * time.Millisecond
	t.Setenv("SEED_DEMO_PASSWORD", "Demo#2026pass")
	repo := memory.NewSeeded()
	svc := New(repo, stubCredentials{}, Options{LoginFailureDelay: delay, Now: func() time.Time { return testNow }})

	hash, err := stubCredentials{}.HashPassword("Quick#Pass2026")
	require.NoError(t, err)
	require.NoError(t, repo.CreateUser(context.Background(), domain.User{
		ID: "user-quick", Name: "Quick", Email: "quick@stoqplus.test",
		PasswordHash: hash, IsVerified: true, CreatedAt: testNow,
	}))

	timeLogin := func(ctx context.Context, email, password string) (time.Duration, error) {
		start := time.Now()
		_, err := svc.Login(ctx, domain.LoginRequest{Email: email, Password: password})
		return time.Since(start), err
	}

	elapsed, err := timeLogin(context.Background(), "nobody@stoqplus.test", "Whatever#1")
	requireCode(t, err, apperr.CodeUnauthorized)
	assert.GreaterOrEqual(t, elapsed, delay, "unknown email")

	elapsed, err = timeLogin(context.Background(), "quick@stoqplus.test", "Wrong#Pass2026")
	requireCode(t, err, apperr.CodeUnauthorized)
	assert.GreaterOrEqual(t, elapsed, delay, "wrong password")

	elapsed, err = timeLogin(context.Background(), "quick@stoqplus.test", "Quick#Pass2026")
	require.NoError(t, err)
	assert.Less(t, elapsed, delay, "successful login")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	elapsed, err = timeLogin(cancelled, "nobody@stoqplus.test", "Whatever#1")
	requireCode(t, err, apperr.CodeUnauthorized)
	assert.Less(t, elapsed, delay, "cancelled context")
}
