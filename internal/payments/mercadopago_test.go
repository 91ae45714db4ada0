package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePreferenceSendsPlanAndReference(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &payload))
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://mp.test/checkout/pref-1"}`))
	}))
	defer srv.Close()

	client, err := NewMercadoPago("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithNotificationURL("https://api.test/api/v1/payments/webhook"))
	require.NoError(t, err)

	pref, err := client.CreatePreference(context.Background(), PreferenceRequest{StoreID: "store-1", PlanType: PlanYearly, ReturnURL: "https://app.test/"})
	require.NoError(t, err)
	assert.Equal(t, "pref-1", pref.ID)
	assert.Equal(t, "https://mp.test/checkout/pref-1", pref.InitPoint)

	assert.Equal(t, "store-1:yearly", payload["external_reference"])
	assert.Equal(t, "https://api.test/api/v1/payments/webhook", payload["notification_url"])
	items := payload["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, 389.9, item["unit_price"])
	backs := payload["back_urls"].(map[string]any)
	assert.Equal(t, "https://app.test/dashboard?status=success", backs["success"])
}

func TestGetPaymentDecodesNumericID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/123", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":123,"status":"approved","external_reference":"store-1:monthly","transaction_amount":49.9}`))
	}))
	defer srv.Close()

	client, err := NewMercadoPago("tok", WithBaseURL(srv.URL))
	require.NoError(t, err)

	p, err := client.GetPayment(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "123", p.ID)
	assert.Equal(t, StatusApproved, p.Status)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("49.9")))
}

func TestGatewayErrorsCarryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid token"}`))
	}))
	defer srv.Close()

	client, err := NewMercadoPago("tok", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.GetPayment(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestNewMercadoPagoRequiresToken(t *testing.T) {
	_, err := NewMercadoPago("  ")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestExternalReferenceRoundTrip(t *testing.T) {
	store, plan := ParseExternalReference(ExternalReference("s-1", PlanMonthly))
	assert.Equal(t, "s-1", store)
	assert.Equal(t, PlanMonthly, plan)

	store, plan = ParseExternalReference("legacy-store")
	assert.Equal(t, "legacy-store", store)
	assert.Empty(t, plan)
}

func TestPlanForRejectsUnknown(t *testing.T) {
	_, err := PlanFor("weekly")
	assert.ErrorIs(t, err, ErrUnknownPlan)
}
