package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stoqplus/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// auth

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusCreated, a.service.Signup)(w, r)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusOK, a.service.Login)(w, r)
}

func (a *API) handleResendCode(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusOK, a.service.ResendCode)(w, r)
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusOK, func(ctx context.Context, req domain.VerifyRequest) (domain.MessageResponse, error) {
		return a.service.Verify(ctx, req.Token)
	})(w, r)
}

// handleVerifyLink serves the link sent by email and sends the browser on to
// the login page.
func (a *API) handleVerifyLink(w http.ResponseWriter, r *http.Request) {
	if _, err := a.service.Verify(r.Context(), r.URL.Query().Get("token")); err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.frontendURL == "" {
		writeJSON(w, http.StatusOK, domain.MessageResponse{Message: "email verified"})
		return
	}
	http.Redirect(w, r, a.frontendURL+"/login?verified=true", http.StatusFound)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.Me)(w, r)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusOK, a.service.ChangePassword)(w, r)
}

func (a *API) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.DeleteMe)(w, r)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusOK, a.service.UpdateProfile)(w, r)
}

// stores and team

func (a *API) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusCreated, a.service.CreateStore)(w, r)
}

func (a *API) handleUpdateStore(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusOK, a.service.UpdateStore)(w, r)
}

func (a *API) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.DeleteStore)(w, r)
}

func (a *API) handleListTeam(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.ListTeam)(w, r)
}

func (a *API) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusCreated, a.service.CreateMember)(w, r)
}

func (a *API) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respondWith(a, http.StatusOK, func(ctx context.Context, req domain.TeamMemberUpdateRequest) (domain.MessageResponse, error) {
		return a.service.UpdateMember(ctx, id, req)
	})(w, r)
}

func (a *API) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := a.service.RemoveMember(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.MessageResponse{Message: "member removed"})
}

// products

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.ListProducts)(w, r)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusCreated, a.service.CreateProduct)(w, r)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respondWith(a, http.StatusOK, func(ctx context.Context, req domain.ProductUpdateRequest) (domain.Product, error) {
		return a.service.UpdateProduct(ctx, id, req)
	})(w, r)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStockEntry(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusCreated, a.service.ApplyStockEntry)(w, r)
}

func (a *API) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.StockHistory)(w, r)
}

// sales

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusCreated, a.service.CreateSale)(w, r)
}

func (a *API) handleListDebts(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.ListDebts)(w, r)
}

func (a *API) handlePayDebt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respond(a, http.StatusOK, func(ctx context.Context) (domain.MessageResponse, error) {
		return a.service.PayDebt(ctx, id)
	})(w, r)
}

func (a *API) handleMyMetrics(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.MyMetrics)(w, r)
}

// customers

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.ListCustomers)(w, r)
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusCreated, a.service.CreateCustomer)(w, r)
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respondWith(a, http.StatusOK, func(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
		return a.service.UpdateCustomer(ctx, id, req)
	})(w, r)
}

func (a *API) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteCustomer(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCustomerHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respond(a, http.StatusOK, func(ctx context.Context) ([]domain.Sale, error) {
		return a.service.CustomerHistory(ctx, id)
	})(w, r)
}

// cashflow

func (a *API) handleCashStatus(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.CashStatus)(w, r)
}

func (a *API) handleCashSummary(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.CashSummary)(w, r)
}

func (a *API) handleOpenCash(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusCreated, a.service.OpenCash)(w, r)
}

func (a *API) handleCashMovement(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusCreated, a.service.AddCashMovement)(w, r)
}

func (a *API) handleCloseCash(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusOK, a.service.CloseCash)(w, r)
}

func (a *API) handleCashHistory(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.CashHistory)(w, r)
}

func (a *API) handleResetCash(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.ResetCash)(w, r)
}

// expenses

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.ListExpenses)(w, r)
}

func (a *API) handleCreateExpenses(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusCreated, a.service.CreateExpenses)(w, r)
}

func (a *API) handleToggleExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respond(a, http.StatusOK, func(ctx context.Context) (domain.Expense, error) {
		return a.service.ToggleExpense(ctx, id)
	})(w, r)
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteExpense(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reports

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	respond(a, http.StatusOK, func(ctx context.Context) (any, error) {
		return a.service.Dashboard(ctx, period)
	})(w, r)
}

func (a *API) handleAdvancedAnalytics(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.AdvancedAnalytics)(w, r)
}

func (a *API) handleFinancialReport(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	respond(a, http.StatusOK, func(ctx context.Context) (any, error) {
		return a.service.FinancialReport(ctx, period)
	})(w, r)
}

// payments

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	respondWith(a, http.StatusOK, a.service.Checkout)(w, r)
}

// handlePaymentWebhook accepts both the JSON notification and the legacy
// query form (?id=&topic=payment). Unknown fields are expected here.
func (a *API) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var hook domain.PaymentWebhook
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&hook); err != nil && !errors.Is(err, io.EOF) {
			a.log.Warn(a.log.WithField(r.Context(), "error", err.Error()), "payments.webhook.undecodable")
		}
	}
	mergeWebhookQuery(&hook, r.URL.Query())

	if err := a.service.HandlePaymentNotification(r.Context(), hook); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.MessageResponse{Message: "OK"})
}

func mergeWebhookQuery(hook *domain.PaymentWebhook, query url.Values) {
	if hook.Data.ID == "" {
		hook.Data.ID = firstNonEmpty(query.Get("data.id"), query.Get("id"))
	}
	if hook.Type == "" {
		hook.Type = firstNonEmpty(query.Get("type"), query.Get("topic"))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// admin

func (a *API) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	respond(a, http.StatusOK, a.service.AdminDashboard)(w, r)
}

func (a *API) handleAdminDeleteStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respond(a, http.StatusOK, func(ctx context.Context) (domain.MessageResponse, error) {
		return a.service.AdminDeleteStore(ctx, id)
	})(w, r)
}
