package httpapi

import (
	"errors"
	"net/http"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/service"
)

// handleLoyaltyAccounts serves /loyalty/accounts/{customer}[/ledger|/redeem|/adjust].
// "me" resolves to the caller's own customer record.
func (a *API) handleLoyaltyAccounts(w http.ResponseWriter, r *http.Request) {
	customerID, action, ok := resourcePath(r.URL.Path, "/api/v1/loyalty/accounts/")
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown loyalty account path"))
		return
	}
	if customerID == "me" {
		actor, _ := service.ActorFromContext(r.Context())
		if actor.CustomerID == "" {
			writeError(w, http.StatusNotFound, errors.New("no customer record linked to this account"))
			return
		}
		customerID = actor.CustomerID
	}

	switch action {
	case "", "ledger":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		var (
			resp domain.LoyaltyAccountResponse
			err  error
		)
		if action == "ledger" {
			limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
			resp, err = a.service.ListLoyaltyLedger(r.Context(), customerID, limit)
		} else {
			resp, err = a.service.GetLoyaltyAccount(r.Context(), customerID)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case "redeem":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.RedeemRequest
		if !bindJSON(w, r, &req) {
			return
		}
		account, err := a.service.RedeemReward(r.Context(), customerID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"account": account})
	case "adjust":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.PointsAdjustRequest
		if !bindJSON(w, r, &req) {
			return
		}
		account, err := a.service.AdjustPoints(r.Context(), customerID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"account": account})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown loyalty action"))
	}
}

func (a *API) handleRewards(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rewards, err := a.service.ListRewards(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rewards": rewards})
	case http.MethodPost:
		var req domain.RewardCreateRequest
		if !bindJSON(w, r, &req) {
			return
		}
		reward, err := a.service.CreateReward(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"reward": reward})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleLoyaltyConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := a.service.GetLoyaltyConfig(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		var req domain.LoyaltyConfig
		if !bindJSON(w, r, &req) {
			return
		}
		cfg, err := a.service.UpdateLoyaltyConfig(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleLoyaltyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	stats, err := a.service.LoyaltyStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
