package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/lock"
	"mafaconnect/backend/internal/service"
	"mafaconnect/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		log.Fatal().Err(err).Msg("failed to generate csrf secret")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes the hex HMAC-SHA256 token for an hour bucket
// (Unix time truncated to the hour).
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts tokens from the current or the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
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
	l.entries[key] = append(kept, now)
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
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)
	mux.HandleFunc("/api/v1/auth/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("/api/v1/auth/refresh", a.requireAuth(a.handleRefresh))

	mux.HandleFunc("/api/v1/admin/dashboard", a.requireAuth(a.handleDashboard, domain.PermViewDashboard))
	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleUsers, domain.PermManageUsers))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.PermViewAudit))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, domain.PermManageInventory))
	mux.HandleFunc("/api/v1/locations", a.requireAuth(a.handleLocations))
	mux.HandleFunc("/api/v1/locations/", a.requireAuth(a.handleLocationActions, domain.PermManageInventory))
	mux.HandleFunc("/api/v1/location-stock", a.requireAuth(a.handleLocationStock))
	mux.HandleFunc("/api/v1/inventory/low-stock", a.requireAuth(a.handleLowStock, domain.PermManageInventory))
	mux.HandleFunc("/api/v1/inventory/reorder-suggestions", a.requireAuth(a.handleReorderSuggestions, domain.PermManageInventory))
	mux.HandleFunc("/api/v1/inventory/alerts", a.requireAuth(a.handleStockAlerts, domain.PermManageInventory))

	mux.HandleFunc("/api/v1/customers", a.requireAuth(a.handleCustomers))
	mux.HandleFunc("/api/v1/transactions", a.requireAuth(a.handleTransactions))
	mux.HandleFunc("/api/v1/transactions/", a.requireAuth(a.handleTransactionActions))
	mux.HandleFunc("/api/v1/transfers", a.requireAuth(a.handleTransfers))
	mux.HandleFunc("/api/v1/transfers/", a.requireAuth(a.handleTransferActions))

	mux.HandleFunc("/api/v1/suppliers", a.requireAuth(a.handleSuppliers, domain.PermManagePurchasing))
	mux.HandleFunc("/api/v1/purchase-orders", a.requireAuth(a.handlePurchaseOrders, domain.PermManagePurchasing))
	mux.HandleFunc("/api/v1/purchase-orders/", a.requireAuth(a.handlePurchaseOrderActions, domain.PermManagePurchasing))
	mux.HandleFunc("/api/v1/returns", a.requireAuth(a.handleReturns, domain.PermProcessReturns))
	mux.HandleFunc("/api/v1/returns/", a.requireAuth(a.handleReturnActions, domain.PermProcessReturns, domain.PermApproveReturns))

	mux.HandleFunc("/api/v1/loyalty/accounts/", a.requireAuth(a.handleLoyaltyAccounts, domain.PermViewOwnLoyalty))
	mux.HandleFunc("/api/v1/loyalty/rewards", a.requireAuth(a.handleRewards, domain.PermViewOwnLoyalty))
	mux.HandleFunc("/api/v1/loyalty/config", a.requireAuth(a.handleLoyaltyConfig, domain.PermViewOwnLoyalty))
	mux.HandleFunc("/api/v1/loyalty/stats", a.requireAuth(a.handleLoyaltyStats, domain.PermManageLoyalty))

	mux.HandleFunc("/api/v1/cart", a.requireAuth(a.handleCart, domain.PermShop))
	mux.HandleFunc("/api/v1/cart/items", a.requireAuth(a.handleCartItems, domain.PermShop))
	mux.HandleFunc("/api/v1/cart/items/", a.requireAuth(a.handleCartItemActions, domain.PermShop))
	mux.HandleFunc("/api/v1/cart/checkout", a.requireAuth(a.handleCheckout, domain.PermShop))
	mux.HandleFunc("/api/v1/orders", a.requireAuth(a.handleOrders, domain.PermShop, domain.PermManageOrders))
	mux.HandleFunc("/api/v1/orders/", a.requireAuth(a.handleOrderActions, domain.PermShop, domain.PermManageOrders))
	mux.HandleFunc("/api/v1/conversations", a.requireAuth(a.handleConversations, domain.PermMessage))
	mux.HandleFunc("/api/v1/conversations/", a.requireAuth(a.handleConversationActions, domain.PermMessage))
	mux.HandleFunc("/api/v1/invoices", a.requireAuth(a.handleInvoices, domain.PermShop, domain.PermManageInvoices))
	mux.HandleFunc("/api/v1/invoices/", a.requireAuth(a.handleInvoiceActions, domain.PermShop, domain.PermManageInvoices))

	return a.withMiddleware(mux)
}

// requireAuth resolves the bearer token into an actor. When perms are given
// the actor must hold at least one of them; finer checks happen in the
// service layer.
func (a *API) requireAuth(next http.HandlerFunc, perms ...domain.Permission) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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

		if len(perms) > 0 && !holdsAny(actor.Role, perms) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func holdsAny(role domain.Role, perms []domain.Permission) bool {
	for _, perm := range perms {
		if role.Can(perm) {
			return true
		}
	}
	return false
}

// csrfExemptPaths are called before a client can have fetched a token.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch && method != http.MethodDelete {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("latency", time.Since(startedAt)).
			Msg("request")
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// resourcePath splits "/prefix/{id}" or "/prefix/{id}/{action}".
func resourcePath(path string, prefix string) (id string, action string, ok bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	tail := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if tail == "" {
		return "", "", false
	}
	parts := strings.Split(tail, "/")
	if len(parts) > 2 {
		return "", "", false
	}
	id = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		action = strings.TrimSpace(parts[1])
	}
	return id, action, id != ""
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, dest any) error {
	if err := decodeJSON(r, dest); err != nil && !errors.Is(err, io.EOF) {
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

// writeServiceError maps service and store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var shortage *store.InsufficientStockError
	if errors.As(err, &shortage) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":       err.Error(),
			"product_id":  shortage.ProductID,
			"location_id": shortage.LocationID,
			"available":   shortage.Available,
			"required":    shortage.Required,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInsufficientPoints),
		errors.Is(err, store.ErrInvalidState),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, lock.ErrBusy):
		status = http.StatusConflict
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
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
