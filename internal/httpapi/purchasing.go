package httpapi

import (
	"errors"
	"net/http"

	"mafaconnect/backend/internal/domain"
)

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
	case http.MethodPost:
		var req domain.SupplierCreateRequest
		if !bindJSON(w, r, &req) {
			return
		}
		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		limit := parsePositiveLimit(query.Get("limit"), 100, 500)
		orders, err := a.service.ListPurchaseOrders(r.Context(), query.Get("status"), limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchase_orders": orders})
	case http.MethodPost:
		var req domain.PurchaseOrderCreateRequest
		if !bindJSON(w, r, &req) {
			return
		}
		order, err := a.service.CreatePurchaseOrder(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"purchase_order": order})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseOrderActions(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourcePath(r.URL.Path, "/api/v1/purchase-orders/")
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown purchase order path"))
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		order, err := a.service.GetPurchaseOrder(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purchase_order": order})
		return
	}

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var (
		order domain.PurchaseOrder
		err   error
	)
	switch action {
	case "order":
		order, err = a.service.MarkPurchaseOrderOrdered(r.Context(), id)
	case "cancel":
		order, err = a.service.CancelPurchaseOrder(r.Context(), id)
	case "receive":
		var req domain.PurchaseOrderReceiveRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err = a.service.ReceivePurchaseOrder(r.Context(), id, req)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown purchase order action"))
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_order": order})
}

func (a *API) handleReturns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		limit := parsePositiveLimit(query.Get("limit"), 100, 500)
		returns, err := a.service.ListReturns(r.Context(), query.Get("status"), limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"returns": returns})
	case http.MethodPost:
		var req domain.ReturnCreateRequest
		if !bindJSON(w, r, &req) {
			return
		}
		ret, err := a.service.CreateReturn(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"return": ret})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleReturnActions(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourcePath(r.URL.Path, "/api/v1/returns/")
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown return path"))
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		ret, err := a.service.GetReturn(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"return": ret})
	case "process":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.ReturnProcessRequest
		if !bindJSON(w, r, &req) {
			return
		}
		ret, err := a.service.ProcessReturn(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"return": ret})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown return action"))
	}
}
