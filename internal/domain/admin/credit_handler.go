package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clearmarket/clearmarket-api/internal/domain/credit"
	"github.com/clearmarket/clearmarket-api/internal/middleware"
	"github.com/clearmarket/clearmarket-api/internal/pkg/errorhandler"
	"github.com/clearmarket/clearmarket-api/internal/pkg/logger"
	"github.com/clearmarket/clearmarket-api/internal/pkg/response"
	"github.com/clearmarket/clearmarket-api/internal/pkg/validator"
)

const maxTransactionPage = 10000

// GrantCreditsRequest represents the request to grant credits
type GrantCreditsRequest struct {
	Amount int    `json:"amount" validate:"required,min=1,max=1000000"`
	Reason string `json:"reason" validate:"required,min=3,max=500"`
	// Type defaults to admin_grant
	Type string `json:"type" validate:"omitempty,grant_type"`
}

// CreditHandler handles admin credit operations
type CreditHandler struct {
	creditService credit.Service
}

// NewCreditHandler creates a new credit handler
func NewCreditHandler(creditService credit.Service) *CreditHandler {
	return &CreditHandler{creditService: creditService}
}

// GrantCredits handles POST /admin/users/{id}/credits/grant
func (h *CreditHandler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	var req GrantCreditsRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	txType := credit.TxTypeAdminGrant
	if req.Type != "" {
		txType = credit.TxType(req.Type)
	}

	// The ledger row is the audit trail: it records who granted and why.
	adminID := middleware.GetUserID(r.Context())
	balance, err := h.creditService.Grant(r.Context(), userID, req.Amount, txType, credit.TxMeta{
		ReferenceType:   credit.ReferenceAdmin,
		RelatedEntityID: adminID.String(),
		Description:     fmt.Sprintf("Admin grant by %s: %s", adminID, req.Reason),
		Metadata: map[string]interface{}{
			"admin_id": adminID.String(),
			"reason":   req.Reason,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, credit.ErrUserNotFound):
			response.NotFound(w, "User not found")
		case errors.Is(err, credit.ErrInvalidAmount), errors.Is(err, credit.ErrInvalidTxType):
			response.BadRequest(w, "Invalid credit grant")
		default:
			errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unable to grant credits", err)
		}
		return
	}

	logger.LogInfo(r.Context(), "admin credit grant",
		"admin_id", adminID.String(),
		"user_id", userID.String(),
		"amount", req.Amount,
		"tx_type", string(txType),
	)

	response.OK(w, map[string]interface{}{
		"user_id":        userID,
		"amount_granted": req.Amount,
		"tx_type":        txType,
		"new_balance":    balance,
		"reason":         req.Reason,
	})
}

// GetUserCredits handles GET /admin/users/{id}/credits
func (h *CreditHandler) GetUserCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	balance, err := h.creditService.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, credit.ErrUserNotFound) {
			response.NotFound(w, "User not found")
			return
		}
		errorhandler.HandleError(r.Context(), w, http.StatusServiceUnavailable, "BALANCE_UNAVAILABLE", "Unable to check credit balance", err)
		return
	}

	recent, err := h.creditService.ListTransactions(r.Context(), userID, 10, 0)
	if err != nil {
		errorhandler.LogDatabaseError(r.Context(), "admin.list_user_transactions", err)
		recent = []credit.CreditTransaction{}
	}

	response.OK(w, map[string]interface{}{
		"user_id":             userID,
		"balance":             balance,
		"recent_transactions": recent,
	})
}

// SearchTransactions handles GET /admin/credits/transactions
// Query: user_id, tx_type, reference_type, related_entity_id, from, to (RFC3339), page, limit
func (h *CreditHandler) SearchTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := credit.SearchFilters{}

	if v := q.Get("user_id"); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			response.BadRequest(w, "Invalid user_id")
			return
		}
		filters.UserID = &v
	}
	if v := q.Get("tx_type"); v != "" {
		filters.TxType = &v
	}
	if v := q.Get("reference_type"); v != "" {
		filters.ReferenceType = &v
	}
	if v := q.Get("related_entity_id"); v != "" {
		filters.RelatedEntityID = &v
	}
	for param, dst := range map[string]**time.Time{"from": &filters.DateFrom, "to": &filters.DateTo} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(w, "Invalid "+param+" date, expected RFC3339")
			return
		}
		*dst = &t
	}

	page := 1
	limit := 50
	if p := q.Get("page"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 || v > maxTransactionPage {
			response.BadRequest(w, "Invalid page")
			return
		}
		page = v
	}
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	filters.Limit = limit
	filters.Offset = (page - 1) * limit

	transactions, err := h.creditService.SearchTransactions(r.Context(), filters)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unable to search transactions", err)
		return
	}

	response.OK(w, map[string]interface{}{
		"items": transactions,
		"page":  page,
		"limit": limit,
	})
}
