package searchcredit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clearmarket/clearmarket-api/internal/pkg/logger"
	"github.com/clearmarket/clearmarket-api/internal/pkg/metrics"
)

// State is a step of the per-submission metering state machine.
type State string

const (
	StateIdle                State = "idle"
	StateClassifying         State = "classifying"
	StateCostZero            State = "cost_zero"
	StateGating              State = "gating"
	StateProceed             State = "proceed"
	StateInsufficientCredits State = "insufficient_credits"
	StateBalanceUnavailable  State = "balance_unavailable"
	StateSessionUnavailable  State = "session_unavailable"
	StateDebiting            State = "debiting"
	StateDebitFailed         State = "debit_failed"
	StateDebited             State = "debited"
	StateSearchExecuting     State = "search_executing"
)

// markPaidTimeout bounds the entitlement write that follows a committed debit.
const markPaidTimeout = 5 * time.Second

// Submission is one search submit within a metered session.
type Submission struct {
	Key     SessionKey
	Filters Filters
}

// SearchFunc runs the underlying search with the full filter set.
type SearchFunc func(ctx context.Context, f Filters) error

// Outcome describes how a submission was metered.
type Outcome struct {
	// State is the last metering state reached before the search ran or the submission stopped.
	State State
	Path  []State

	Quote   Quote
	Charged []Dimension

	// Balance is known after a gate read or a debit.
	Balance *int

	Entitlements Entitlements

	// SearchRan is set when the search was invoked; SearchErr holds its failure, never a metering error.
	SearchRan bool
	SearchErr error
}

func (o *Outcome) enter(s State) {
	o.Path = append(o.Path, s)
	if s != StateIdle && s != StateSearchExecuting && s != StateProceed {
		o.State = s
	}
}

// Meter runs the metering state machine for search submissions.
type Meter struct {
	gate     *Gate
	spender  Spender
	sessions SessionStore
	metrics  *metrics.Metering
}

// NewMeter wires the balance gate, the debit path and the entitlement store. m may be nil.
func NewMeter(balances BalanceReader, spender Spender, sessions SessionStore, m *metrics.Metering) *Meter {
	return &Meter{
		gate:     NewGate(balances),
		spender:  spender,
		sessions: sessions,
		metrics:  m,
	}
}

// Submit meters sub and, when the submission is free or paid, runs search with the full
// filter set. Metering failures are terminal and returned as errors with no retry; the search
// is not run and entitlements are left untouched. A search failure is reported in the Outcome.
func (m *Meter) Submit(ctx context.Context, sub Submission, search SearchFunc) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{Path: []State{StateIdle}, State: StateIdle}
	log := logger.FromContext(ctx).With().
		Str("user_id", sub.Key.UserID.String()).
		Str("search_session", sub.Key.SessionID).
		Logger()

	err := m.meter(ctx, sub, out)
	m.metrics.ObserveSubmission(string(out.State), out.Quote.Cost, time.Since(start))

	if err != nil {
		out.enter(StateIdle)
		log.Info().Err(err).
			Str("state", string(out.State)).
			Int("cost", out.Quote.Cost).
			Msg("search submission rejected")
		return out, err
	}

	out.enter(StateSearchExecuting)
	log.Debug().Strs("path", statesToStrings(out.Path)).Msg("search metering complete")

	out.SearchRan = true
	if err := search(ctx, sub.Filters); err != nil {
		out.SearchErr = err
		log.Warn().Err(err).Msg("search failed after metering")
	}
	out.enter(StateIdle)
	return out, nil
}

func (m *Meter) meter(ctx context.Context, sub Submission, out *Outcome) error {
	out.enter(StateClassifying)
	active := Classify(sub.Filters)

	paid, err := m.sessions.Load(ctx, sub.Key)
	if err != nil {
		out.enter(StateSessionUnavailable)
		logger.LogError(ctx, err, "failed to load search session", "search_session", sub.Key.SessionID)
		return ErrSessionUnavailable
	}
	out.Entitlements = paid
	out.Quote = QuoteFor(active, paid)

	if out.Quote.Free() {
		out.enter(StateCostZero)
		out.enter(StateProceed)
		return nil
	}

	out.enter(StateGating)
	balance, err := m.gate.Check(ctx, sub.Key.UserID, out.Quote.Cost)
	if err != nil {
		var insufficient *InsufficientCreditsError
		if errors.As(err, &insufficient) {
			out.Balance = &balance
			out.enter(StateInsufficientCredits)
			return insufficient
		}
		out.enter(StateBalanceUnavailable)
		logger.LogError(ctx, err, "balance read failed", "user_id", sub.Key.UserID.String())
		return ErrBalanceUnavailable
	}
	out.enter(StateProceed)

	out.enter(StateDebiting)
	balance, err = Debit(ctx, m.spender, sub.Key, out.Quote, sub.Filters)
	if err != nil {
		out.enter(StateDebitFailed)
		logger.LogWarn(ctx, "search filter debit failed", "error", err.Error(), "cost", out.Quote.Cost)
		return ErrDebitFailed
	}
	out.Balance = &balance
	out.Charged = out.Quote.Charge
	m.metrics.ObserveDebit(out.Quote.Cost, dimensionsToStrings(out.Charged))

	// The debit is committed; the entitlement write must outlive the client request.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markPaidTimeout)
	defer cancel()
	if err := m.sessions.MarkPaid(markCtx, sub.Key, out.Charged...); err != nil {
		logger.LogError(ctx, err, "failed to persist search entitlements after debit",
			"search_session", sub.Key.SessionID, "charged", out.Quote.Cost)
	}
	out.Entitlements.MarkPaid(out.Charged...)
	out.enter(StateDebited)
	return nil
}

// Preview prices filters for the session without reading the balance or charging.
func (m *Meter) Preview(ctx context.Context, key SessionKey, f Filters) (Quote, Entitlements, error) {
	paid, err := m.sessions.Load(ctx, key)
	if err != nil {
		logger.LogError(ctx, err, "failed to load search session", "search_session", key.SessionID)
		return Quote{}, Entitlements{}, ErrSessionUnavailable
	}
	return QuoteFor(Classify(f), paid), paid, nil
}

// Session returns the session's current entitlements.
func (m *Meter) Session(ctx context.Context, key SessionKey) (Entitlements, error) {
	paid, err := m.sessions.Load(ctx, key)
	if err != nil {
		logger.LogError(ctx, err, "failed to load search session", "search_session", key.SessionID)
		return Entitlements{}, ErrSessionUnavailable
	}
	return paid, nil
}

// Reset starts a fresh metered session: every premium dimension is charged again on next use.
func (m *Meter) Reset(ctx context.Context, key SessionKey) error {
	if err := m.sessions.Reset(ctx, key); err != nil {
		logger.LogError(ctx, err, "failed to reset search session", "search_session", key.SessionID)
		return ErrSessionUnavailable
	}
	logger.LogInfo(ctx, "search session reset", "user_id", key.UserID.String(), "search_session", key.SessionID)
	return nil
}

// NewSessionID returns a fresh search session id.
func NewSessionID() string {
	return uuid.NewString()
}

func statesToStrings(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func dimensionsToStrings(ds []Dimension) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d)
	}
	return out
}
