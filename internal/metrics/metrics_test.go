package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecordersExportCounters(t *testing.T) {
	m := New()
	m.ObserveRequest("/api/v1/sales", http.MethodPost, http.StatusCreated, 20*time.Millisecond)
	m.SaleCreated("PIX", 35.5)
	m.SaleCreated("PIX", 10)
	m.CashSessionClosed(true)
	m.CashSessionClosed(false)
	m.CashSessionClosed(false)

	mfs, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	if got, err := counterValue(mfs, "stoq_sales_created_total", "payment_method", "PIX"); err != nil || got != 2 {
		t.Fatalf("expected 2 PIX sales, got %v (%v)", got, err)
	}
	if got, err := counterValue(mfs, "stoq_cash_sessions_closed_total", "outcome", "difference"); err != nil || got != 2 {
		t.Fatalf("expected 2 unbalanced closes, got %v (%v)", got, err)
	}
	if got, err := counterValue(mfs, "stoq_http_requests_total", "status", "201"); err != nil || got != 1 {
		t.Fatalf("expected 1 request, got %v (%v)", got, err)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("/", http.MethodGet, 200, time.Millisecond)
	m.SaleCreated("MONEY", 1)
	m.CashSessionClosed(true)
	m.StockEntry("ENTRY")
	m.AuthThrottled()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil handler, got %d", rec.Code)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.StockEntry("LOSS")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `stoq_stock_entries_total{type="LOSS"} 1`) {
		t.Fatalf("stock entry counter missing from exposition")
	}
}

func counterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return metric.GetCounter().GetValue(), nil
				}
			}
		}
		return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
	}
	return 0, fmt.Errorf("metric %q not found", name)
}
