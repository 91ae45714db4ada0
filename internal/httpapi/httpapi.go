package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"stoqplus/backend/internal/apperr"
	"stoqplus/backend/internal/logger"
	"stoqplus/backend/internal/metrics"
	"stoqplus/backend/internal/service"
)

const maxBodyBytes = 1 << 20

type Options struct {
	Logger         *logger.Logger
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	// FrontendURL receives the browser after a link-based email verification.
	FrontendURL   string
	AttemptLimit  int
	AttemptWindow time.Duration
}

type API struct {
	service      *service.Service
	auth         *AuthManager
	log          *logger.Logger
	metrics      *metrics.Metrics
	origins      []string
	frontendURL  string
	loginLimiter *attemptLimiter
	signupLimit  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.AttemptLimit <= 0 {
		opts.AttemptLimit = 5
	}
	if opts.AttemptWindow <= 0 {
		opts.AttemptWindow = 15 * time.Minute
	}
	return &API{
		service:      svc,
		auth:         auth,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		origins:      opts.AllowedOrigins,
		frontendURL:  strings.TrimRight(opts.FrontendURL, "/"),
		loginLimiter: newAttemptLimiter(opts.AttemptLimit, opts.AttemptWindow),
		signupLimit:  newAttemptLimiter(opts.AttemptLimit, opts.AttemptWindow),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		a.recoverer,
		a.requestID,
		a.requestLog,
		a.securityHeaders,
		a.cors(),
	)

	r.Get("/healthz", a.handleHealth)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(a.throttle(a.signupLimit)).Post("/signup", a.handleSignup)
			r.With(a.throttle(a.loginLimiter)).Post("/login", a.handleLogin)
			r.Post("/resend-code", a.handleResendCode)
			r.Post("/verify", a.handleVerify)
			r.Get("/verify", a.handleVerifyLink)

			r.Group(func(r chi.Router) {
				r.Use(a.authenticate)
				r.Get("/me", a.handleMe)
				r.Put("/change-password", a.handleChangePassword)
				r.Delete("/me", a.handleDeleteMe)
			})
		})

		r.Post("/payments/webhook", a.handlePaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)

			r.Put("/users/me", a.handleUpdateProfile)

			r.Route("/stores", func(r chi.Router) {
				r.Post("/", a.handleCreateStore)
				r.Put("/me", a.handleUpdateStore)
				r.Delete("/me", a.handleDeleteStore)
			})

			r.Route("/team", func(r chi.Router) {
				r.Get("/", a.handleListTeam)
				r.Post("/", a.handleCreateMember)
				r.Put("/{id}", a.handleUpdateMember)
				r.Delete("/{id}", a.handleRemoveMember)
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", a.handleListProducts)
				r.Post("/", a.handleCreateProduct)
				r.Post("/entry", a.handleStockEntry)
				r.Get("/history", a.handleStockHistory)
				r.Put("/{id}", a.handleUpdateProduct)
				r.Delete("/{id}", a.handleDeleteProduct)
			})

			r.Route("/sales", func(r chi.Router) {
				r.Post("/", a.handleCreateSale)
				r.Get("/debts", a.handleListDebts)
				r.Get("/my-metrics", a.handleMyMetrics)
				r.Put("/{id}/pay", a.handlePayDebt)
			})

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", a.handleListCustomers)
				r.Post("/", a.handleCreateCustomer)
				r.Put("/{id}", a.handleUpdateCustomer)
				r.Delete("/{id}", a.handleDeleteCustomer)
				r.Get("/{id}/history", a.handleCustomerHistory)
			})

			r.Route("/cashflow", func(r chi.Router) {
				r.Get("/status", a.handleCashStatus)
				r.Get("/summary", a.handleCashSummary)
				r.Post("/open", a.handleOpenCash)
				r.Post("/movement", a.handleCashMovement)
				r.Post("/close", a.handleCloseCash)
				r.Get("/history", a.handleCashHistory)
				r.Post("/reset", a.handleResetCash)
			})

			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", a.handleListExpenses)
				r.Post("/", a.handleCreateExpenses)
				r.Patch("/{id}/toggle", a.handleToggleExpense)
				r.Delete("/{id}", a.handleDeleteExpense)
			})

			r.Get("/dashboard", a.handleDashboard)
			r.Get("/dashboard/advanced", a.handleAdvancedAnalytics)
			r.Get("/reports", a.handleFinancialReport)

			r.Post("/payments/checkout", a.handleCheckout)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/dashboard", a.handleAdminDashboard)
				r.Delete("/stores/{id}", a.handleAdminDeleteStore)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, apperr.NotFound("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	return r
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.Wrap(apperr.CodeValidation, err, "request body too large")
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is required")
		}
		return apperr.Wrap(apperr.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
	if err := validate.Struct(dest); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return apperr.Wrap(apperr.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fieldPath(fe)] = validationMessage(fe)
	}
	return apperr.Validation("validation failed").WithDetails(details)
}

// fieldPath drops the struct name from the namespace so nested lines read
// "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Internal(err, "unexpected error")
	}
	meta := apperr.MetadataFor(typed.Code())

	body := errorBody{Error: meta.PublicMessage, Code: string(typed.Code()), Reason: typed.Reason()}
	if meta.ExposeMessage {
		if m := typed.Message(); m != "" {
			body.Error = m
		}
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	ctx := r.Context()
	if meta.HTTPStatus >= http.StatusInternalServerError {
		a.log.Error(a.log.WithField(ctx, "error_code", string(typed.Code())), "request.failed", err)
	} else {
		a.log.Debug(a.log.WithFields(ctx, map[string]any{"error_code": string(typed.Code()), "error": typed.Message()}), "request.rejected")
	}
	writeJSON(w, meta.HTTPStatus, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respond runs a body-less operation and writes its result.
func respond[R any](a *API, status int, op func(context.Context) (R, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := op(r.Context())
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, status, resp)
	}
}

// respondWith decodes and validates the body before running op.
func respondWith[T any, R any](a *API, status int, op func(context.Context, T) (R, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
		resp, err := op(r.Context(), req)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, status, resp)
	}
}
