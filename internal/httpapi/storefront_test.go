package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mafaconnect/backend/internal/domain"
)

func TestCartCheckoutAndPaymentOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	customer := login(t, handler, "amaka", testStaffPassword)
	manager := login(t, handler, "manager", testStaffPassword)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/cart/items", customer, map[string]any{
		"product_id": "prd-oil",
		"quantity":   2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cartBody struct {
		Cart domain.Cart `json:"cart"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cartBody))
	require.Len(t, cartBody.Cart.Items, 1)
	assert.Equal(t, "500", cartBody.Cart.Subtotal.String())

	rec = call(t, api, handler, http.MethodPost, "/api/v1/cart/checkout", customer, map[string]any{
		"location_id":    "loc-lagos",
		"payment_method": "bank_transfer",
		"contact_phone":  "+2348000000000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var orderBody struct {
		Order domain.CustomerOrder `json:"order"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&orderBody))
	orderID := orderBody.Order.ID
	assert.Equal(t, domain.OrderStatusPending, orderBody.Order.Status)

	// Customers cannot confirm their own payment.
	rec = call(t, api, handler, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm-payment", customer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, api, handler, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm-payment", manager, map[string]any{
		"payment_reference": "TRX-991",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&orderBody))
	assert.Equal(t, domain.PaymentStatusPaid, orderBody.Order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, orderBody.Order.Status)

	rec = call(t, api, handler, http.MethodPost, "/api/v1/orders/"+orderID+"/confirm-payment", manager, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, api, handler, http.MethodGet, "/api/v1/orders", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listBody struct {
		Orders []domain.CustomerOrder `json:"orders"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listBody))
	require.Len(t, listBody.Orders, 1)
	assert.Equal(t, orderID, listBody.Orders[0].ID)
}

func TestCartRoutesRejectStaff(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	agent := login(t, handler, "agent", testStaffPassword)

	rec := call(t, api, handler, http.MethodGet, "/api/v1/cart", agent, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCheckoutValidationFailsWithFieldErrors(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	customer := login(t, handler, "amaka", testStaffPassword)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/cart/checkout", customer, map[string]any{
		"location_id":    "loc-lagos",
		"payment_method": "crypto",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "oneof", body.Fields["payment_method"])
	assert.Equal(t, "required", body.Fields["contact_phone"])
}

func TestConversationThreadOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	customer := login(t, handler, "amaka", testStaffPassword)
	agent := login(t, handler, "agent", testStaffPassword)

	rec := call(t, api, handler, http.MethodPost, "/api/v1/conversations", customer, map[string]any{
		"subject": "Delivery window",
		"body":    "When will my rice arrive?",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var convBody struct {
		Conversation domain.Conversation `json:"conversation"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&convBody))
	assert.Equal(t, "cus-amaka", convBody.Conversation.CustomerID)

	path := "/api/v1/conversations/" + convBody.Conversation.ID + "/messages"
	rec = call(t, api, handler, http.MethodPost, path, agent, map[string]any{"body": "Tomorrow morning."})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(t, api, handler, http.MethodGet, path, customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgBody struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msgBody))
	require.Len(t, msgBody.Messages, 2)
	assert.Equal(t, domain.SenderCustomer, msgBody.Messages[0].SenderType)
	assert.Equal(t, domain.SenderStaff, msgBody.Messages[1].SenderType)
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	agent := login(t, handler, "agent", testStaffPassword)
	manager := login(t, handler, "manager", testStaffPassword)

	due := time.Now().UTC().Add(14 * 24 * time.Hour)
	rec := call(t, api, handler, http.MethodPost, "/api/v1/invoices", agent, map[string]any{
		"customer_id":     "cus-tunde",
		"due_date":        due,
		"tax_amount":      "15",
		"discount_amount": "5",
		"items": []map[string]any{
			{"product_id": "prd-rice", "quantity": 2},
			{"description": "Delivery", "quantity": 1, "unit_price": "20"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "220", body.Invoice.Subtotal.String())
	assert.Equal(t, "230", body.Invoice.Total.String())
	assert.Equal(t, domain.InvoiceStatusDraft, body.Invoice.Status)
	path := "/api/v1/invoices/" + body.Invoice.ID

	rec = call(t, api, handler, http.MethodPatch, path+"/status", agent, map[string]any{"status": "paid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, api, handler, http.MethodDelete, path, manager, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, api, handler, http.MethodGet, path, manager, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteWithoutCSRFTokenRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	customer := login(t, handler, "amaka", testStaffPassword)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer "+customer)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	assert.Equal(t, http.StatusForbidden, res.Code)

	rec := call(t, api, handler, http.MethodDelete, "/api/v1/cart", customer, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
