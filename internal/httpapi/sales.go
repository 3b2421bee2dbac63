package httpapi

import (
	"errors"
	"net/http"

	"mafaconnect/backend/internal/domain"
)

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		customers, err := a.service.ListCustomers(r.Context(), limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerCreateRequest
		if !bindJSON(w, r, &req) {
			return
		}
		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		transactions, err := a.service.ListTransactions(r.Context(), domain.TransactionFilter{
			Type:       domain.TransactionType(query.Get("type")),
			Status:     query.Get("status"),
			LocationID: query.Get("location_id"),
			CustomerID: query.Get("customer_id"),
			Limit:      parsePositiveLimit(query.Get("limit"), 100, 500),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
	case http.MethodPost:
		var req domain.TransactionCreateRequest
		if !bindJSON(w, r, &req) {
			return
		}
		tx, err := a.service.CreateTransaction(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTransactionActions(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourcePath(r.URL.Path, "/api/v1/transactions/")
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown transaction path"))
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		tx, err := a.service.GetTransaction(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
	case "status":
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.TransactionStatusUpdateRequest
		if !bindJSON(w, r, &req) {
			return
		}
		tx, err := a.service.UpdateTransactionStatus(r.Context(), id, req.Status)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown transaction action"))
	}
}

func (a *API) handleTransfers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		limit := parsePositiveLimit(query.Get("limit"), 100, 500)
		transfers, err := a.service.ListTransfers(r.Context(), query.Get("status"), limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
	case http.MethodPost:
		var req domain.TransferCreateRequest
		if !bindJSON(w, r, &req) {
			return
		}
		transfer, err := a.service.CreateTransfer(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"transfer": transfer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTransferActions(w http.ResponseWriter, r *http.Request) {
	id, action, ok := resourcePath(r.URL.Path, "/api/v1/transfers/")
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown transfer path"))
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		transfer, err := a.service.GetTransfer(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transfer": transfer})
		return
	}

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var (
		transfer domain.StockMovement
		err      error
	)
	switch action {
	case "approve":
		transfer, err = a.service.ApproveTransfer(r.Context(), id)
	case "complete":
		transfer, err = a.service.CompleteTransfer(r.Context(), id)
	case "cancel":
		transfer, err = a.service.CancelTransfer(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown transfer action"))
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfer": transfer})
}
