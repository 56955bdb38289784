package search

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/clearmarket/clearmarket-api/internal/domain/searchcredit"
)

// SearchRequest for POST /search/field-reps
type SearchRequest struct {
	searchcredit.Filters
	Page  int `json:"page" validate:"omitempty,gte=1,lte=10000"`
	Limit int `json:"limit" validate:"omitempty,gte=1,lte=100"`
}

// MeteringResponse describes how the submission was charged.
type MeteringResponse struct {
	State        searchcredit.State        `json:"state"`
	Cost         int                       `json:"cost"`
	Charged      []searchcredit.Dimension  `json:"charged"`
	Balance      *int                      `json:"balance,omitempty"`
	Entitlements searchcredit.Entitlements `json:"entitlements"`
}

// SearchResponse for POST /search/field-reps
type SearchResponse struct {
	SessionID string            `json:"session_id"`
	Results   []*FieldRep       `json:"results"`
	Metering  *MeteringResponse `json:"metering"`
}

// QuoteResponse for GET /search/quote
type QuoteResponse struct {
	SessionID    string                    `json:"session_id"`
	Active       []searchcredit.Dimension  `json:"active"`
	Charge       []searchcredit.Dimension  `json:"charge"`
	Cost         int                       `json:"cost"`
	Entitlements searchcredit.Entitlements `json:"entitlements"`
}

// SessionResponse for GET /search/session
type SessionResponse struct {
	SessionID    string                    `json:"session_id"`
	Entitlements searchcredit.Entitlements `json:"entitlements"`
	Paid         []searchcredit.Dimension  `json:"paid"`
}

func meteringFromOutcome(o *searchcredit.Outcome) *MeteringResponse {
	charged := o.Charged
	if charged == nil {
		charged = []searchcredit.Dimension{}
	}
	return &MeteringResponse{
		State:        o.State,
		Cost:         o.Quote.Cost,
		Charged:      charged,
		Balance:      o.Balance,
		Entitlements: o.Entitlements,
	}
}

// filtersFromQuery reads filters from query params. List params accept repeated keys
// or comma-separated values.
func filtersFromQuery(q url.Values) searchcredit.Filters {
	f := searchcredit.Filters{
		State:           strings.ToUpper(strings.TrimSpace(q.Get("state"))),
		Counties:        listParam(q, "counties"),
		Keyword:         strings.TrimSpace(q.Get("keyword")),
		Platforms:       listParam(q, "platforms"),
		InspectionTypes: listParam(q, "inspection_types"),
	}
	if v, err := strconv.ParseBool(q.Get("abc_required")); err == nil {
		f.ABCRequired = &v
	}
	if v, err := strconv.ParseBool(q.Get("hud_key_required")); err == nil {
		f.HUDKeyRequired = &v
	}
	return f
}

func listParam(q url.Values, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
