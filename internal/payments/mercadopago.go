// Package payments talks to Mercado Pago for plan checkout.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL        = "https://api.mercadopago.com"
	responseBodyReadLimit = 1024

	PlanMonthly = "monthly"
	PlanYearly  = "yearly"

	StatusApproved = "approved"
)

var (
	ErrNotConfigured = errors.New("payment gateway not configured")
	ErrUnknownPlan   = errors.New("unknown plan")

	MonthlyPrice = decimal.RequireFromString("49.90")
	YearlyPrice  = decimal.RequireFromString("389.90")
)

type Gateway interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
}

type PreferenceRequest struct {
	StoreID  string
	PlanType string
	// ReturnURL is the frontend base the buyer is sent back to.
	ReturnURL string
}

type Preference struct {
	ID        string
	InitPoint string
}

type Payment struct {
	ID                string
	Status            string
	ExternalReference string
	Amount            decimal.Decimal
}

// Plan describes what a checkout sells.
type Plan struct {
	Type  string
	Title string
	Price decimal.Decimal
	Days  int
}

func PlanFor(planType string) (Plan, error) {
	switch planType {
	case PlanMonthly:
		return Plan{Type: PlanMonthly, Title: "Stoq+ Mensal (Acesso por 30 dias)", Price: MonthlyPrice, Days: 30}, nil
	case PlanYearly:
		return Plan{Type: PlanYearly, Title: "Stoq+ Anual (Acesso total por 12 meses)", Price: YearlyPrice, Days: 365}, nil
	}
	return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, planType)
}

// ExternalReference ties a payment back to the store and plan bought.
func ExternalReference(storeID, planType string) string {
	return storeID + ":" + planType
}

// ParseExternalReference splits a reference built by ExternalReference. Bare
// store ids yield an empty plan type.
func ParseExternalReference(ref string) (storeID string, planType string) {
	storeID, planType, _ = strings.Cut(strings.TrimSpace(ref), ":")
	return storeID, planType
}

// MercadoPago is a Gateway over the Mercado Pago REST API.
type MercadoPago struct {
	httpClient      *http.Client
	baseURL         string
	accessToken     string
	notificationURL string
}

type Option func(*MercadoPago)

func WithHTTPClient(client *http.Client) Option {
	return func(m *MercadoPago) {
		if client != nil {
			m.httpClient = client
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(m *MercadoPago) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			m.baseURL = trimmed
		}
	}
}

// WithNotificationURL sets where Mercado Pago posts payment webhooks.
func WithNotificationURL(notificationURL string) Option {
	return func(m *MercadoPago) {
		m.notificationURL = strings.TrimSpace(notificationURL)
	}
}

func NewMercadoPago(accessToken string, opts ...Option) (*MercadoPago, error) {
	token := strings.TrimSpace(accessToken)
	if token == "" {
		return nil, ErrNotConfigured
	}
	m := &MercadoPago{
		accessToken: token,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

type preferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type backURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type preferencePayload struct {
	Items               []preferenceItem `json:"items"`
	ExternalReference   string           `json:"external_reference"`
	BackURLs            *backURLs        `json:"back_urls,omitempty"`
	AutoReturn          string           `json:"auto_return,omitempty"`
	NotificationURL     string           `json:"notification_url,omitempty"`
	StatementDescriptor string           `json:"statement_descriptor"`
}

func (m *MercadoPago) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	if m == nil {
		return nil, ErrNotConfigured
	}
	plan, err := PlanFor(req.PlanType)
	if err != nil {
		return nil, err
	}

	payload := preferencePayload{
		Items: []preferenceItem{{
			ID: plan.Type, Title: plan.Title, Quantity: 1, UnitPrice: plan.Price.InexactFloat64(), CurrencyID: "BRL",
		}},
		ExternalReference:   ExternalReference(req.StoreID, plan.Type),
		NotificationURL:     m.notificationURL,
		StatementDescriptor: "STOQ PLUS",
	}
	if base := strings.TrimRight(req.ReturnURL, "/"); base != "" {
		payload.BackURLs = &backURLs{
			Success: base + "/dashboard?status=success",
			Failure: base + "/subscription?status=failure",
			Pending: base + "/subscription?status=pending",
		}
		payload.AutoReturn = StatusApproved
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal preference: %w", err)
	}

	var out struct {
		ID        string `json:"id"`
		InitPoint string `json:"init_point"`
	}
	if err := m.do(ctx, http.MethodPost, "/checkout/preferences", bytes.NewReader(body), &out); err != nil {
		return nil, fmt.Errorf("create preference: %w", err)
	}
	return &Preference{ID: out.ID, InitPoint: out.InitPoint}, nil
}

func (m *MercadoPago) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if m == nil {
		return nil, ErrNotConfigured
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, errors.New("payment id is required")
	}

	var out struct {
		ID                json.Number     `json:"id"`
		Status            string          `json:"status"`
		ExternalReference string          `json:"external_reference"`
		TransactionAmount decimal.Decimal `json:"transaction_amount"`
	}
	if err := m.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(trimmed), nil, &out); err != nil {
		return nil, fmt.Errorf("get payment %s: %w", trimmed, err)
	}
	return &Payment{
		ID:                out.ID.String(),
		Status:            out.Status,
		ExternalReference: out.ExternalReference,
		Amount:            out.TransactionAmount,
	}, nil
}

func (m *MercadoPago) do(ctx context.Context, method, path string, body io.Reader, dest any) error {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(m.baseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
