package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"mypharma/backend/internal/service"
	"mypharma/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	signinLimiter *attemptLimiter
	pinLimiter    *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		signinLimiter: newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
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
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.withMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/api/health", a.handleHealth)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", a.handleSignup)
		r.Post("/signin", a.handleSignin)
		r.With(a.requireAuth).Get("/verify", a.handleVerify)
		r.With(a.requireAuth).Post("/verify-pin", a.handleVerifyPIN)
		r.With(a.requireAuth).Put("/pin", a.handleSetPIN)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Route("/api/inventory", func(r chi.Router) {
			r.Get("/", a.handleListInventory)
			r.Post("/", a.handleCreateInventory)
			r.Get("/low-stock", a.handleLowStock)
			r.Get("/alerts", a.handleInventoryAlerts)
			r.Get("/{id}", a.handleGetInventory)
			r.Put("/{id}", a.handleUpdateInventory)
			r.Delete("/{id}", a.handleDeleteInventory)
			r.Post("/{id}/restock", a.handleRestock)
			r.Get("/{id}/availability", a.handleAvailability)
		})

		r.Route("/api/customers", func(r chi.Router) {
			r.Get("/", a.handleListCustomers)
			r.Post("/", a.handleCreateCustomer)
			r.Get("/with-credit", a.handleCustomersWithCredit)
			r.Get("/{id}", a.handleGetCustomer)
			r.Put("/{id}", a.handleUpdateCustomer)
			r.Delete("/{id}", a.handleDeleteCustomer)
			r.Post("/{id}/payments", a.handleCreditPayment)
		})

		r.Route("/api/sales", func(r chi.Router) {
			r.Get("/", a.handleListSales)
			r.Post("/", a.handleRecordSale)
			r.Get("/range", a.handleSalesRange)
			r.Get("/{id}", a.handleGetSale)
			r.Delete("/{id}", a.handleDeleteSale)
		})

		r.Route("/api/categories", func(r chi.Router) {
			r.Get("/", a.handleListCategories)
			r.Post("/", a.handleCreateCategory)
			r.Put("/{id}", a.handleUpdateCategory)
			r.Delete("/{id}", a.handleDeleteCategory)
		})

		r.Route("/api/suppliers", func(r chi.Router) {
			r.Get("/", a.handleListSuppliers)
			r.Post("/", a.handleCreateSupplier)
			r.Put("/{id}", a.handleUpdateSupplier)
			r.Delete("/{id}", a.handleDeleteSupplier)
		})

		r.Route("/api/reports", func(r chi.Router) {
			r.Get("/stats", a.handleStats)
			r.Get("/top-medicines", a.handleTopMedicines)
			r.Get("/sales-by-category", a.handleSalesByCategory)
			r.Get("/recent-sales", a.handleRecentSales)
			r.Get("/monthly-sales", a.handleMonthlySales)
			r.Get("/export", a.handleExport)
		})

		r.Get("/api/audit-logs", a.handleAuditLogs)
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(startedAt)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeServiceError maps a service failure onto its status code and body.
// Validation is checked first: an unknown sale customer is a validation
// failure that also matches ErrCustomerNotFound.
func writeServiceError(w http.ResponseWriter, err error) {
	var validation *store.ValidationError
	var lineErr *store.LineItemError

	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err)
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   store.ErrValidation.Error(),
			"field":   validation.Field,
			"reason":  validation.Reason,
			"message": validation.Error(),
		})
	case errors.As(err, &lineErr) && errors.Is(err, store.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     store.ErrInsufficientStock.Error(),
			"itemId":    lineErr.ItemID,
			"requested": lineErr.Requested,
			"available": lineErr.Available,
		})
	case errors.As(err, &lineErr) && errors.Is(err, store.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":  store.ErrItemNotFound.Error(),
			"itemId": lineErr.ItemID,
		})
	case errors.Is(err, store.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": store.ErrItemNotFound.Error()})
	case errors.Is(err, store.ErrCustomerNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": store.ErrCustomerNotFound.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrStoreUnavailable):
		zap.S().Errorw("store unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": store.ErrStoreUnavailable.Error()})
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log only.
	msg := err.Error()
	if status >= 500 {
		zap.S().Errorw("internal error", "status", status, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
