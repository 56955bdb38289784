package credit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps accounts and the ledger in process memory.
// Balance and ledger change under one lock, matching the atomicity of CreditRepository.
type MemoryRepository struct {
	mu       sync.Mutex
	balances map[string]int
	ledger   []CreditTransaction
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		balances: make(map[string]int),
		now:      time.Now,
	}
}

// Open creates an account with the given starting balance, or overwrites an existing one.
// The opening balance is not a ledger event.
func (r *MemoryRepository) Open(userID string, balance int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if balance < 0 {
		balance = 0
	}
	r.balances[userID] = balance
}

func (r *MemoryRepository) Debit(ctx context.Context, userID string, amount int, meta TxMeta) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	metadata, err := encodeMetadata(meta.Metadata)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	balance, ok := r.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	if balance < amount {
		return 0, ErrInsufficientCredits
	}

	r.balances[userID] = balance - amount
	r.append(userID, -amount, TxTypeDeduction, meta, metadata)
	return balance - amount, nil
}

func (r *MemoryRepository) Credit(ctx context.Context, userID string, amount int, txType TxType, meta TxMeta) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !txType.IsGrant() {
		return 0, ErrInvalidTxType
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	metadata, err := encodeMetadata(meta.Metadata)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	balance, ok := r.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}

	r.balances[userID] = balance + amount
	r.append(userID, amount, txType, meta, metadata)
	return balance + amount, nil
}

func (r *MemoryRepository) GetBalance(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	balance, ok := r.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return balance, nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, userID string, pagination Pagination) ([]CreditTransaction, error) {
	limit := pagination.Limit
	if limit <= 0 {
		limit = 20
	}
	return r.SearchTransactions(ctx, SearchFilters{UserID: &userID, Limit: limit, Offset: pagination.Offset})
}

func (r *MemoryRepository) SearchTransactions(ctx context.Context, filters SearchFilters) ([]CreditTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	matched := make([]CreditTransaction, 0)
	for i := len(r.ledger) - 1; i >= 0; i-- {
		if matches(r.ledger[i], filters) {
			matched = append(matched, r.ledger[i])
		}
	}
	r.mu.Unlock()

	// newest first; reverse append order breaks timestamp ties
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	if filters.Offset >= len(matched) {
		return []CreditTransaction{}, nil
	}
	matched = matched[filters.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// append must be called with r.mu held.
func (r *MemoryRepository) append(userID string, delta int, txType TxType, meta TxMeta, metadata []byte) {
	r.ledger = append(r.ledger, CreditTransaction{
		ID:              uuid.New().String(),
		UserID:          userID,
		AmountDelta:     delta,
		TxType:          string(txType),
		ReferenceType:   nullIfEmpty(meta.ReferenceType),
		RelatedEntityID: nullIfEmpty(meta.RelatedEntityID),
		Metadata:        metadata,
		Description:     describe(txType, meta),
		CreatedAt:       r.now(),
	})
}

func matches(t CreditTransaction, f SearchFilters) bool {
	if f.UserID != nil && *f.UserID != "" && t.UserID != *f.UserID {
		return false
	}
	if f.TxType != nil && *f.TxType != "" && t.TxType != *f.TxType {
		return false
	}
	if f.ReferenceType != nil && *f.ReferenceType != "" && (t.ReferenceType == nil || *t.ReferenceType != *f.ReferenceType) {
		return false
	}
	if f.RelatedEntityID != nil && *f.RelatedEntityID != "" && (t.RelatedEntityID == nil || *t.RelatedEntityID != *f.RelatedEntityID) {
		return false
	}
	if f.DateFrom != nil && t.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && t.CreatedAt.After(*f.DateTo) {
		return false
	}
	return true
}
