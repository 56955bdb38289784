package search_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearmarket/clearmarket-api/internal/domain/credit"
	"github.com/clearmarket/clearmarket-api/internal/domain/search"
	"github.com/clearmarket/clearmarket-api/internal/domain/searchcredit"
	"github.com/clearmarket/clearmarket-api/internal/middleware"
	"github.com/clearmarket/clearmarket-api/internal/pkg/jwt"
)

type env struct {
	router  http.Handler
	credits credit.Service
	jwt     *jwt.Service
	userID  uuid.UUID
	token   string
}

func newEnv(t *testing.T, balance int, repo search.Repository) *env {
	t.Helper()
	ledger := credit.NewMemoryRepository()
	credits := credit.NewService(ledger)
	userID := uuid.New()
	ledger.Open(userID.String(), balance)

	return newEnvWith(t, credits, userID, repo, credits, credits, searchcredit.NewMemorySessionStore(time.Hour))
}

// newEnvWith wires the meter to the given collaborators; credits is still the ledger reported by balance.
func newEnvWith(t *testing.T, credits credit.Service, userID uuid.UUID, repo search.Repository,
	balances searchcredit.BalanceReader, spender searchcredit.Spender, sessions searchcredit.SessionStore) *env {
	t.Helper()
	meter := searchcredit.NewMeter(balances, spender, sessions, nil)
	jwtSvc := jwt.NewService("search-handler-secret", time.Hour)
	token, err := jwtSvc.GenerateAccessToken(userID, jwt.RoleVendor, false)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Mount("/search", search.NewHandler(search.NewService(meter, repo, 50)).Routes(middleware.Auth(jwtSvc)))

	return &env{router: r, credits: credits, jwt: jwtSvc, userID: userID, token: token}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func (e *env) do(t *testing.T, method, path, session string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+e.token)
	if session != "" {
		req.Header.Set(search.SessionHeader, session)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func (e *env) balance(t *testing.T) int {
	t.Helper()
	b, err := e.credits.GetBalance(context.Background(), e.userID)
	require.NoError(t, err)
	return b
}

func TestSearchChargesOncePerSession(t *testing.T) {
	e := newEnv(t, 3, search.NewMemoryRepository(search.DevFieldReps()...))

	rec, body := e.do(t, http.MethodPost, "/search/field-reps", "tab-1", map[string]interface{}{
		"state":     "TX",
		"platforms": []string{"EZ"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "tab-1", rec.Header().Get(search.SessionHeader))

	var data search.SearchResponse
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, searchcredit.StateDebited, data.Metering.State)
	assert.Equal(t, 1, data.Metering.Cost)
	require.NotNil(t, data.Metering.Balance)
	assert.Equal(t, 2, *data.Metering.Balance)
	assert.Len(t, data.Results, 2)

	rec, body = e.do(t, http.MethodPost, "/search/field-reps", "tab-1", map[string]interface{}{
		"state":     "TX",
		"platforms": []string{"EZ", "IA"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, searchcredit.StateCostZero, data.Metering.State)
	assert.Equal(t, 0, data.Metering.Cost)
	assert.Equal(t, 2, e.balance(t))

	// another session pays again
	rec, _ = e.do(t, http.MethodPost, "/search/field-reps", "tab-2", map[string]interface{}{"platforms": []string{"EZ"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, e.balance(t))
}

func TestSearchMintsSessionWhenHeaderMissing(t *testing.T) {
	e := newEnv(t, 0, search.NewMemoryRepository(search.DevFieldReps()...))

	rec, body := e.do(t, http.MethodPost, "/search/field-reps", "", map[string]interface{}{"state": "GA"})
	require.Equal(t, http.StatusOK, rec.Code)

	session := rec.Header().Get(search.SessionHeader)
	assert.NotEmpty(t, session)
	var data search.SearchResponse
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, session, data.SessionID)
}

func TestSearchInsufficientCredits(t *testing.T) {
	e := newEnv(t, 1, search.NewMemoryRepository(search.DevFieldReps()...))

	rec, body := e.do(t, http.MethodPost, "/search/field-reps", "tab-1", map[string]interface{}{
		"platforms":        []string{"EZ"},
		"inspection_types": []string{"interior"},
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "INSUFFICIENT_CREDITS", body.Error.Code)
	assert.Equal(t, "You need 2 credits for this search", body.Error.Message)
	assert.Equal(t, "2", body.Error.Details["required"])
	assert.Equal(t, "1", body.Error.Details["balance"])
	assert.Equal(t, 1, e.balance(t))
}

type failingRepo struct{}

func (failingRepo) SearchFieldReps(context.Context, searchcredit.Filters, search.Page) ([]*search.FieldRep, int, error) {
	return nil, 0, errors.New("statement timeout")
}

func TestSearchFailureReportsCharge(t *testing.T) {
	e := newEnv(t, 2, failingRepo{})

	rec, body := e.do(t, http.MethodPost, "/search/field-reps", "tab-1", map[string]interface{}{"abc_required": true})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "SEARCH_FAILED", body.Error.Code)
	assert.Equal(t, "abc_required", body.Error.Details["charged"])
	assert.Equal(t, "1", body.Error.Details["cost"])
	assert.Equal(t, 1, e.balance(t))

	// the paid filter stays unlocked for the retry
	rec, body = e.do(t, http.MethodGet, "/search/quote?abc_required=true", "tab-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var quote search.QuoteResponse
	require.NoError(t, json.Unmarshal(body.Data, &quote))
	assert.Equal(t, 0, quote.Cost)
}

func TestSearchValidation(t *testing.T) {
	e := newEnv(t, 3, search.NewMemoryRepository())

	rec, body := e.do(t, http.MethodPost, "/search/field-reps", "tab-1", map[string]interface{}{
		"state":     "Texas",
		"platforms": []string{"not a code!"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, body.Error)
	assert.Contains(t, body.Error.Details, "state")
	assert.Contains(t, body.Error.Details, "platforms[0]")
	assert.Equal(t, 3, e.balance(t))

	rec, _ = e.do(t, http.MethodPost, "/search/field-reps", "bad session!", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteSessionAndReset(t *testing.T) {
	e := newEnv(t, 5, search.NewMemoryRepository(search.DevFieldReps()...))

	rec, body := e.do(t, http.MethodGet, "/search/quote?platforms=EZ,IA&hud_key_required=true&inspection_types=interior", "tab-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var quote search.QuoteResponse
	require.NoError(t, json.Unmarshal(body.Data, &quote))
	assert.Equal(t, 3, quote.Cost)
	assert.Equal(t, 5, e.balance(t), "quotes never charge")

	rec, _ = e.do(t, http.MethodPost, "/search/field-reps", "tab-1", map[string]interface{}{"hud_key_required": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = e.do(t, http.MethodGet, "/search/session", "tab-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var session search.SessionResponse
	require.NoError(t, json.Unmarshal(body.Data, &session))
	assert.True(t, session.Entitlements.HUDKeyRequired)
	assert.Equal(t, []searchcredit.Dimension{searchcredit.DimensionHUDKeyRequired}, session.Paid)

	rec, _ = e.do(t, http.MethodPost, "/search/session/reset", "tab-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = e.do(t, http.MethodGet, "/search/quote?hud_key_required=true", "tab-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &quote))
	assert.Equal(t, 1, quote.Cost)
}

func TestSearchRequiresVendor(t *testing.T) {
	e := newEnv(t, 3, search.NewMemoryRepository())
	token, err := e.jwt.GenerateAccessToken(uuid.New(), jwt.RoleFieldRep, false)
	require.NoError(t, err)
	e.token = token

	rec, body := e.do(t, http.MethodGet, "/search/session", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, body.Success)
}

func TestSearchRejectsHugePageWithoutCharge(t *testing.T) {
	e := newEnv(t, 3, search.NewMemoryRepository(search.DevFieldReps()...))

	rec, body := e.do(t, http.MethodPost, "/search/field-reps", "tab-1", map[string]interface{}{
		"platforms": []string{"EZ"},
		"page":      461168601842738800,
		"limit":     20,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	require.NotNil(t, body.Error)
	assert.Contains(t, body.Error.Details, "page")
	assert.Equal(t, 3, e.balance(t))
}

func TestServiceRejectsPageBeyondMaxWithoutCharge(t *testing.T) {
	ledger := credit.NewMemoryRepository()
	credits := credit.NewService(ledger)
	userID := uuid.New()
	ledger.Open(userID.String(), 3)

	meter := searchcredit.NewMeter(credits, credits, searchcredit.NewMemorySessionStore(time.Hour), nil)
	svc := search.NewService(meter, search.NewMemoryRepository(search.DevFieldReps()...), 50)
	key := searchcredit.SessionKey{UserID: userID, SessionID: "tab-1"}

	res, err := svc.Search(context.Background(), key, searchcredit.Filters{Platforms: []string{"EZ"}}, search.Page{Page: search.MaxPage + 1, Limit: 20})
	assert.ErrorIs(t, err, search.ErrPageOutOfRange)
	assert.Nil(t, res)

	balance, err := credits.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, balance)
}

type failingBalances struct{}

func (failingBalances) GetBalance(context.Context, uuid.UUID) (int, error) {
	return 0, errors.New("ledger offline")
}

type rejectingSpender struct{}

func (rejectingSpender) Spend(context.Context, uuid.UUID, int, credit.TxMeta) (int, error) {
	return 0, credit.ErrInsufficientCredits
}

type offlineSessions struct{}

func (offlineSessions) Load(context.Context, searchcredit.SessionKey) (searchcredit.Entitlements, error) {
	return searchcredit.Entitlements{}, errors.New("redis offline")
}

func (offlineSessions) MarkPaid(context.Context, searchcredit.SessionKey, ...searchcredit.Dimension) error {
	return errors.New("redis offline")
}

func (offlineSessions) Reset(context.Context, searchcredit.SessionKey) error {
	return errors.New("redis offline")
}

type countingRepo struct {
	calls int
}

func (r *countingRepo) SearchFieldReps(context.Context, searchcredit.Filters, search.Page) ([]*search.FieldRep, int, error) {
	r.calls++
	return []*search.FieldRep{}, 0, nil
}

func TestSearchMeteringFailures(t *testing.T) {
	tests := []struct {
		name     string
		balances func(credit.Service) searchcredit.BalanceReader
		spender  func(credit.Service) searchcredit.Spender
		sessions searchcredit.SessionStore
		status   int
		code     string
	}{
		{
			name:     "balance unavailable",
			balances: func(credit.Service) searchcredit.BalanceReader { return failingBalances{} },
			spender:  func(c credit.Service) searchcredit.Spender { return c },
			sessions: searchcredit.NewMemorySessionStore(time.Hour),
			status:   http.StatusServiceUnavailable,
			code:     "BALANCE_UNAVAILABLE",
		},
		{
			name:     "debit rejected",
			balances: func(c credit.Service) searchcredit.BalanceReader { return c },
			spender:  func(credit.Service) searchcredit.Spender { return rejectingSpender{} },
			sessions: searchcredit.NewMemorySessionStore(time.Hour),
			status:   http.StatusConflict,
			code:     "DEBIT_FAILED",
		},
		{
			name:     "session store unavailable",
			balances: func(c credit.Service) searchcredit.BalanceReader { return c },
			spender:  func(c credit.Service) searchcredit.Spender { return c },
			sessions: offlineSessions{},
			status:   http.StatusServiceUnavailable,
			code:     "SESSION_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := credit.NewMemoryRepository()
			credits := credit.NewService(ledger)
			userID := uuid.New()
			ledger.Open(userID.String(), 3)
			repo := &countingRepo{}
			e := newEnvWith(t, credits, userID, repo, tt.balances(credits), tt.spender(credits), tt.sessions)

			rec, body := e.do(t, http.MethodPost, "/search/field-reps", "tab-1", map[string]interface{}{
				"platforms": []string{"EZ"},
			})
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Zero(t, repo.calls)
			assert.Equal(t, 3, e.balance(t))
		})
	}
}
