package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/lock"
	"mafaconnect/backend/internal/store"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, res.Header().Get("Referrer-Policy"))
	assert.Equal(t, "*", res.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodOptions, "/api/v1/transactions", nil))

	assert.Equal(t, http.StatusNoContent, res.Code)
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		if i < 5 {
			require.Equal(t, http.StatusUnauthorized, res.Code, "attempt %d", i+1)
		} else {
			require.Equal(t, http.StatusTooManyRequests, res.Code, "attempt %d", i+1)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestMutationWithoutCSRFTokenRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "manager", testStaffPassword)

	payload, _ := json.Marshal(domain.LocationCreateRequest{Name: "Kano Depot"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/locations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusForbidden, res.Code)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/locations", token, domain.LocationCreateRequest{Name: "Kano Depot"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCSRFTokenFromPreviousHourAccepted(t *testing.T) {
	api := newTestAPI(t)
	previous := time.Now().UTC().Truncate(time.Hour).Unix() - 3600
	stale := time.Now().UTC().Truncate(time.Hour).Unix() - 7200

	assert.True(t, api.validateCSRFToken(api.generateCSRFToken()))
	assert.True(t, api.validateCSRFToken(api.csrfTokenForHour(previous)))
	assert.False(t, api.validateCSRFToken(api.csrfTokenForHour(stale)))
	assert.False(t, api.validateCSRFToken(""))
}

func TestTamperedTokenUnauthorized(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "admin", testAdminPassword)

	rec := call(t, api, handler, http.MethodGet, "/api/v1/auth/me", token+"x", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("%w: bad", store.ErrInvalidInput), http.StatusBadRequest},
		{"forbidden", fmt.Errorf("%w: nope", domain.ErrForbidden), http.StatusForbidden},
		{"not found", fmt.Errorf("product x: %w", store.ErrNotFound), http.StatusNotFound},
		{"invalid state", store.ErrInvalidState, http.StatusConflict},
		{"conflict", store.ErrConflict, http.StatusConflict},
		{"points", store.ErrInsufficientPoints, http.StatusConflict},
		{"busy", lock.ErrBusy, http.StatusConflict},
		{"shortage", &store.InsufficientStockError{ProductID: "p", Available: 1, Required: 2}, http.StatusConflict},
		{"other", errors.New("pq: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tc.err)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestInternalErrorsAreMasked(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, errors.New("pq: relation \"secrets\" does not exist"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secrets")
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestResourcePath(t *testing.T) {
	id, action, ok := resourcePath("/api/v1/transfers/trf-1/approve", "/api/v1/transfers/")
	assert.True(t, ok)
	assert.Equal(t, "trf-1", id)
	assert.Equal(t, "approve", action)

	id, action, ok = resourcePath("/api/v1/transfers/trf-1/", "/api/v1/transfers/")
	assert.True(t, ok)
	assert.Equal(t, "trf-1", id)
	assert.Empty(t, action)

	_, _, ok = resourcePath("/api/v1/transfers/", "/api/v1/transfers/")
	assert.False(t, ok)
	_, _, ok = resourcePath("/api/v1/transfers/a/b/c", "/api/v1/transfers/")
	assert.False(t, ok)
}
