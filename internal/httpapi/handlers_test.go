package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/service"
	"mafaconnect/backend/internal/store/memory"
)

const (
	testAdminPassword = "admin12345"
	testStaffPassword = "staff12345"
)

// newTestAPI wires a seeded in-memory store, a real AuthManager and a real
// Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", testAdminPassword)
	t.Setenv("SEED_STAFF_PASSWORD", testStaffPassword)

	repo := memory.NewSeeded()
	svc := service.New(repo, service.Dependencies{})
	auth := NewAuthManager("test-secret-key-that-is-long-enough", time.Hour, repo)
	return New(svc, auth, "*")
}

func login(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()
	payload, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

// call sends an authenticated request carrying a valid CSRF token.
func call(t *testing.T, api *API, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
}

func TestLoginAndMe(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "amaka", testStaffPassword)

	rec := call(t, api, handler, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		User domain.Actor `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "amaka", body.User.Username)
	assert.Equal(t, domain.RoleCustomer, body.User.Role)
	assert.Equal(t, "cus-amaka", body.User.CustomerID)
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	api := newTestAPI(t)
	rec := call(t, api, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	rec := call(t, api, api.Handler(), http.MethodGet, "/api/v1/transactions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateCashSaleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "agent", testStaffPassword)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/transactions", token, map[string]any{
		"transaction_type": "cash_sale",
		"customer_id":      "cus-amaka",
		"location_id":      "loc-lagos",
		"items": []map[string]any{
			{"product_id": "prd-rice", "quantity": 3},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Transaction domain.Transaction `json:"transaction"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	tx := body.Transaction
	assert.Equal(t, domain.TransactionType("cash_sale"), tx.Type)
	assert.True(t, tx.Total.Equal(decimal.RequireFromString("322.5")), "total %s", tx.Total)
	assert.Equal(t, 3, tx.PointsEarned)
	assert.Equal(t, "agent", tx.SalesAgent)

	rec = call(t, api, handler, http.MethodGet, "/api/v1/transactions/"+tx.ID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTransactionInsufficientStockConflict(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "agent", testStaffPassword)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/transactions", token, map[string]any{
		"transaction_type": "cash_sale",
		"location_id":      "loc-abuja",
		"items": []map[string]any{
			{"product_id": "prd-rice", "quantity": 6},
		},
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.JSONEq(t, `"prd-rice"`, string(body["product_id"]))
	assert.JSONEq(t, `5`, string(body["available"]))
	assert.JSONEq(t, `6`, string(body["required"]))
}

func TestCreateTransactionValidationFailure(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "agent", testStaffPassword)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/transactions", token, map[string]any{
		"transaction_type": "barter",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "oneof", body.Fields["transaction_type"])
	assert.Equal(t, "required", body.Fields["items"])
}

func TestUnknownFieldRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "manager", testStaffPassword)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/locations", token, map[string]any{
		"name":   "Kano Depot",
		"colour": "blue",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCustomerCannotListTransactions(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "amaka", testStaffPassword)

	rec := call(t, api, handler, http.MethodGet, "/api/v1/transactions", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTransactionNotFound(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "agent", testStaffPassword)

	rec := call(t, api, handler, http.MethodGet, "/api/v1/transactions/txn-missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCustomerLoyaltyAccountAccess(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "amaka", testStaffPassword)

	rec := call(t, api, handler, http.MethodGet, "/api/v1/loyalty/accounts/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, api, handler, http.MethodGet, "/api/v1/loyalty/accounts/cus-tunde", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, api, handler, http.MethodPost, "/api/v1/loyalty/accounts/me/adjust", token, domain.PointsAdjustRequest{Points: 100, Note: "gift"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRedeemWithoutPointsConflict(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "amaka", testStaffPassword)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/loyalty/accounts/me/redeem", token, domain.RedeemRequest{RewardID: "rwd-bag"})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestTransferLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "manager", testStaffPassword)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/transfers", token, domain.TransferCreateRequest{
		ProductID:      "prd-oil",
		FromLocationID: "loc-lagos",
		ToLocationID:   "loc-abuja",
		Quantity:       5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Transfer domain.StockMovement `json:"transfer"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	id := created.Transfer.ID
	assert.Equal(t, domain.TransferStatusPending, created.Transfer.Status)

	rec = call(t, api, handler, http.MethodPost, "/api/v1/transfers/"+id+"/approve", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = call(t, api, handler, http.MethodPost, "/api/v1/transfers/"+id+"/complete", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = call(t, api, handler, http.MethodPost, "/api/v1/transfers/"+id+"/complete", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, api, handler, http.MethodPost, "/api/v1/transfers/"+id+"/teleport", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransferToSameLocationRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "agent", testStaffPassword)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/transfers", token, domain.TransferCreateRequest{
		ProductID:      "prd-oil",
		FromLocationID: "loc-lagos",
		ToLocationID:   "loc-lagos",
		Quantity:       1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPurchaseOrderReceiveWithoutBody(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "manager", testStaffPassword)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/purchase-orders", token, map[string]any{
		"supplier_id": "sup-dangote",
		"location_id": "loc-abuja",
		"items": []map[string]any{
			{"product_id": "prd-flour", "quantity": 20, "unit_cost": "60"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		PurchaseOrder domain.PurchaseOrder `json:"purchase_order"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	id := created.PurchaseOrder.ID

	rec = call(t, api, handler, http.MethodPost, "/api/v1/purchase-orders/"+id+"/order", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = call(t, api, handler, http.MethodPost, "/api/v1/purchase-orders/"+id+"/receive", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var received struct {
		PurchaseOrder domain.PurchaseOrder `json:"purchase_order"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&received))
	assert.Equal(t, domain.POStatusReceived, received.PurchaseOrder.Status)

	rec = call(t, api, handler, http.MethodGet, "/api/v1/location-stock?location_id=loc-abuja", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stock struct {
		Stock []domain.LocationStock `json:"stock"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stock))
	found := false
	for _, row := range stock.Stock {
		if row.ProductID == "prd-flour" {
			found = true
			assert.Equal(t, 20, row.StockQty)
		}
	}
	assert.True(t, found, "flour row created at loc-abuja")
}

func TestSalesAgentCannotReachPurchasing(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "agent", testStaffPassword)

	rec := call(t, api, handler, http.MethodGet, "/api/v1/purchase-orders", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUsersAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	adminToken := login(t, handler, "admin", testAdminPassword)
	managerToken := login(t, handler, "manager", testStaffPassword)

	rec := call(t, api, handler, http.MethodGet, "/api/v1/users", managerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, api, handler, http.MethodPost, "/api/v1/users", adminToken, domain.UserCreateRequest{
		Username:   "tunde",
		Password:   "tunde-secret",
		Role:       "customer",
		CustomerID: "cus-tunde",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	token := login(t, handler, "tunde", "tunde-secret")
	rec = call(t, api, handler, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"customer_id":"cus-tunde"`)
}

func TestDashboardForManager(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "manager", testStaffPassword)

	rec := call(t, api, handler, http.MethodGet, "/api/v1/admin/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var dashboard domain.Dashboard
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dashboard))
	assert.EqualValues(t, 4, dashboard.Products)
	assert.EqualValues(t, 2, dashboard.Locations)
}

func TestReorderSuggestionsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "manager", testStaffPassword)

	rec := call(t, api, handler, http.MethodGet, "/api/v1/inventory/reorder-suggestions?location_id=loc-lagos", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.ReorderSuggestionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "prd-flour", resp.Suggestions[0].ProductID)
	assert.Equal(t, 12, resp.Suggestions[0].RecommendedQty)
}
