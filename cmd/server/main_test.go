package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stoqplus/backend/internal/config"
	"stoqplus/backend/internal/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Env:           config.AppEnvDev,
			AllowedOrigin: "http://localhost:5173, http://admin.local",
			FrontendURL:   "http://localhost:5173",
			BackendURL:    "http://localhost:8080",
		},
		Auth: config.AuthConfig{
			JWTSecret:     "0123456789abcdef0123456789abcdef",
			TokenTTL:      time.Hour,
			AttemptLimit:  5,
			AttemptWindow: time.Minute,
		},
		Admin: config.AdminConfig{Email: "root@stoqplus.test", Name: "Root"},
	}
}

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "short"
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}

	cfg = testConfig()
	cfg.App.Env = config.AppEnvProd
	cfg.App.AllowedOrigin = "*"
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected wildcard origin to be rejected in prod")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	if err := validateSecurityConfig(testConfig()); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestSplitOrigins(t *testing.T) {
	got := splitOrigins(" http://a.test ,, http://b.test ")
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", got)
	}
}

func TestNewAppRefusesMemoryStoreInProd(t *testing.T) {
	cfg := testConfig()
	cfg.App.Env = config.AppEnvProd
	if _, err := newApp(context.Background(), cfg, logger.Nop()); err == nil {
		t.Fatal("expected prod without a database URL to fail")
	}
}

func TestNewAppServesHealthAndSeedsAdmin(t *testing.T) {
	t.Setenv("SEED_DEMO_PASSWORD", "Demo#Test2026")
	cfg := testConfig()
	cfg.Admin.Password = "Root#Pass2026"

	a, err := newApp(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := `{"email":"root@stoqplus.test","password":"Root#Pass2026"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"is_super_admin":true`) {
		t.Fatalf("expected a super admin, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
}
