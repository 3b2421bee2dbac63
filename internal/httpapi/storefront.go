package httpapi

import (
	"errors"
	"net/http"

	"mafaconnect/backend/internal/domain"
)

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cart, err := a.service.GetCart(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
	case http.MethodDelete:
		if err := a.service.ClearCart(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CartItemAddRequest
	if !bindJSON(w, r, &req) {
		return
	}
	cart, err := a.service.AddCartItem(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (a *API) handleCartItemActions(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourcePath(r.URL.Path, "/api/v1/cart/items/")
	if !ok || action != "" {
		writeError(w, http.StatusNotFound, errors.New("unknown cart item path"))
		return
	}

	var (
		cart domain.Cart
		err  error
	)
	switch r.Method {
	case http.MethodPatch:
		var req domain.CartItemUpdateRequest
		if !bindJSON(w, r, &req) {
			return
		}
		cart, err = a.service.UpdateCartItem(r.Context(), id, req)
	case http.MethodDelete:
		cart, err = a.service.RemoveCartItem(r.Context(), id)
	default:
		writeMethodNotAllowed(w)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CheckoutRequest
	if !bindJSON(w, r, &req) {
		return
	}
	order, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	orders, err := a.service.ListOrders(r.Context(), domain.OrderFilter{
		Status:     query.Get("status"),
		CustomerID: query.Get("customer_id"),
		Limit:      parsePositiveLimit(query.Get("limit"), 100, 500),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourcePath(r.URL.Path, "/api/v1/orders/")
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown order path"))
		return
	}

	var (
		order domain.CustomerOrder
		err   error
	)
	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		order, err = a.service.GetOrder(r.Context(), id)
	case "confirm-payment":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.OrderPaymentRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !validateRequest(w, &req) {
			return
		}
		order, err = a.service.ConfirmOrderPayment(r.Context(), id, req)
	case "status":
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.OrderStatusRequest
		if !bindJSON(w, r, &req) {
			return
		}
		order, err = a.service.UpdateOrderStatus(r.Context(), id, req)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown order action"))
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		conversations, err := a.service.ListConversations(r.Context(), limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
	case http.MethodPost:
		var req domain.ConversationCreateRequest
		if !bindJSON(w, r, &req) {
			return
		}
		conversation, err := a.service.StartConversation(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"conversation": conversation})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleConversationActions(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourcePath(r.URL.Path, "/api/v1/conversations/")
	if !ok || action != "messages" {
		writeError(w, http.StatusNotFound, errors.New("unknown conversation path"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		messages, err := a.service.ListMessages(r.Context(), id, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
	case http.MethodPost:
		var req domain.MessageCreateRequest
		if !bindJSON(w, r, &req) {
			return
		}
		msg, err := a.service.SendMessage(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleInvoices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		invoices, err := a.service.ListInvoices(r.Context(), domain.InvoiceFilter{
			Status:     query.Get("status"),
			CustomerID: query.Get("customer_id"),
			Limit:      parsePositiveLimit(query.Get("limit"), 100, 500),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
	case http.MethodPost:
		var req domain.InvoiceRequest
		if !bindJSON(w, r, &req) {
			return
		}
		invoice, err := a.service.CreateInvoice(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"invoice": invoice})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleInvoiceActions(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourcePath(r.URL.Path, "/api/v1/invoices/")
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown invoice path"))
		return
	}

	var (
		invoice domain.Invoice
		err     error
	)
	switch {
	case action == "" && r.Method == http.MethodGet:
		invoice, err = a.service.GetInvoice(r.Context(), id)
	case action == "" && r.Method == http.MethodPut:
		var req domain.InvoiceRequest
		if !bindJSON(w, r, &req) {
			return
		}
		invoice, err = a.service.UpdateInvoice(r.Context(), id, req)
	case action == "" && r.Method == http.MethodDelete:
		if err := a.service.DeleteInvoice(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	case action == "status" && r.Method == http.MethodPatch:
		var req domain.InvoiceStatusRequest
		if !bindJSON(w, r, &req) {
			return
		}
		invoice, err = a.service.UpdateInvoiceStatus(r.Context(), id, req)
	case action == "" || action == "status":
		writeMethodNotAllowed(w)
		return
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown invoice action"))
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}
