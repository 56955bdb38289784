package search

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clearmarket/clearmarket-api/internal/domain/searchcredit"
	"github.com/clearmarket/clearmarket-api/internal/middleware"
	"github.com/clearmarket/clearmarket-api/internal/pkg/errorhandler"
	"github.com/clearmarket/clearmarket-api/internal/pkg/response"
	"github.com/clearmarket/clearmarket-api/internal/pkg/validator"
)

// SessionHeader carries the metered search session id. Generated and echoed when absent.
const SessionHeader = "X-Search-Session"

// Handler serves metered field rep search.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Search handles POST /search/field-reps
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}

	var req SearchRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	req.State = strings.ToUpper(strings.TrimSpace(req.State))
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	res, err := h.service.Search(r.Context(), key, req.Filters, Page{Page: req.Page, Limit: req.Limit})
	if errors.Is(err, ErrPageOutOfRange) {
		response.BadRequest(w, "Page out of range")
		return
	}
	if err != nil {
		h.writeMeteringError(w, r, res, err)
		return
	}

	response.WithMeta(w, &SearchResponse{
		SessionID: key.SessionID,
		Results:   res.Reps,
		Metering:  meteringFromOutcome(res.Outcome),
	}, response.NewMeta(res.Total, res.Page.Page, res.Page.Limit))
}

// Quote handles GET /search/quote
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}

	filters := filtersFromQuery(r.URL.Query())
	if errs := validator.Validate(&filters); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	quote, paid, err := h.service.Quote(r.Context(), key, filters)
	if err != nil {
		h.writeMeteringError(w, r, nil, err)
		return
	}

	response.OK(w, &QuoteResponse{
		SessionID:    key.SessionID,
		Active:       quote.Active,
		Charge:       quote.Charge,
		Cost:         quote.Cost,
		Entitlements: paid,
	})
}

// Session handles GET /search/session
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}

	paid, err := h.service.Session(r.Context(), key)
	if err != nil {
		h.writeMeteringError(w, r, nil, err)
		return
	}

	response.OK(w, &SessionResponse{
		SessionID:    key.SessionID,
		Entitlements: paid,
		Paid:         paid.PaidDimensions(),
	})
}

// ResetSession handles POST /search/session/reset
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}

	if err := h.service.ResetSession(r.Context(), key); err != nil {
		h.writeMeteringError(w, r, nil, err)
		return
	}

	response.OK(w, &SessionResponse{
		SessionID: key.SessionID,
		Paid:      []searchcredit.Dimension{},
	})
}

func (h *Handler) writeMeteringError(w http.ResponseWriter, r *http.Request, res *Result, err error) {
	ctx := r.Context()

	var insufficient *searchcredit.InsufficientCreditsError
	switch {
	case errors.As(err, &insufficient):
		response.ErrorWithDetails(w, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", insufficient.Error(), map[string]string{
			"required": strconv.Itoa(insufficient.Required),
			"balance":  strconv.Itoa(insufficient.Balance),
		})
	case errors.Is(err, searchcredit.ErrBalanceUnavailable):
		errorhandler.HandleError(ctx, w, http.StatusServiceUnavailable, "BALANCE_UNAVAILABLE", "Unable to check credit balance", err)
	case errors.Is(err, searchcredit.ErrSessionUnavailable):
		errorhandler.HandleError(ctx, w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "Unable to load search session", err)
	case errors.Is(err, searchcredit.ErrDebitFailed):
		errorhandler.HandleError(ctx, w, http.StatusConflict, "DEBIT_FAILED", "Unable to process credit payment", err)
	case errors.Is(err, ErrSearchFailed):
		details := map[string]string{"charged": "", "cost": "0"}
		if res != nil && res.Outcome != nil {
			charged := make([]string, len(res.Outcome.Charged))
			for i, d := range res.Outcome.Charged {
				charged[i] = string(d)
			}
			details["charged"] = strings.Join(charged, ",")
			details["cost"] = strconv.Itoa(len(res.Outcome.Charged) * searchcredit.CreditsPerDimension)
		}
		errorhandler.HandleErrorWithDetails(ctx, w, http.StatusBadGateway, "SEARCH_FAILED", "Search failed, premium filters remain unlocked for this session", details, err)
	default:
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
	}
}

// sessionKey binds the caller to the session named by SessionHeader, minting one when absent.
func sessionKey(w http.ResponseWriter, r *http.Request) (searchcredit.SessionKey, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return searchcredit.SessionKey{}, false
	}

	sessionID := strings.TrimSpace(r.Header.Get(SessionHeader))
	if sessionID == "" {
		sessionID = searchcredit.NewSessionID()
	}

	key, err := searchcredit.NewSessionKey(userID, sessionID)
	if err != nil {
		response.BadRequest(w, "Invalid "+SessionHeader+" header")
		return searchcredit.SessionKey{}, false
	}

	w.Header().Set(SessionHeader, key.SessionID)
	return key, true
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireVendor())

	r.Post("/field-reps", h.Search)
	r.Get("/quote", h.Quote)
	r.Get("/session", h.Session)
	r.Post("/session/reset", h.ResetSession)
	return r
}
