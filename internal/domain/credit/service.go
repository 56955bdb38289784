package credit

import (
	"context"

	"github.com/google/uuid"

	"github.com/clearmarket/clearmarket-api/internal/pkg/logger"
)

// Service defines the credit account operations.
// current_balance is one shared counter per user; search filters, coverage requests
// and any other feature all spend from it.
type Service interface {
	// GetBalance returns the current balance. ErrUserNotFound if no account exists.
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)

	// Spend atomically deducts amount and appends one ledger row. It fails with
	// ErrInsufficientCredits rather than partially apply when the balance is short at commit time.
	Spend(ctx context.Context, userID uuid.UUID, amount int, meta TxMeta) (int, error)

	// Grant atomically adds amount (purchase completion, referral bonus, admin grant, refund).
	Grant(ctx context.Context, userID uuid.UUID, amount int, txType TxType, meta TxMeta) (int, error)

	// ListTransactions returns paginated transaction history for a user
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]CreditTransaction, error)

	// SearchTransactions returns filtered transactions (admin use)
	SearchTransactions(ctx context.Context, filters SearchFilters) ([]CreditTransaction, error)
}

type service struct {
	repo Repository
}

// NewService creates a new credit service
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.GetBalance(ctx, userID.String())
}

func (s *service) Spend(ctx context.Context, userID uuid.UUID, amount int, meta TxMeta) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	balance, err := s.repo.Debit(ctx, userID.String(), amount, meta)
	if err != nil {
		return 0, err
	}

	logger.FromContext(ctx).Info().
		Str("user_id", userID.String()).
		Int("amount", amount).
		Str("reference_type", meta.ReferenceType).
		Int("balance", balance).
		Msg("credits spent")
	return balance, nil
}

func (s *service) Grant(ctx context.Context, userID uuid.UUID, amount int, txType TxType, meta TxMeta) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !txType.IsGrant() {
		return 0, ErrInvalidTxType
	}

	balance, err := s.repo.Credit(ctx, userID.String(), amount, txType, meta)
	if err != nil {
		return 0, err
	}

	logger.FromContext(ctx).Info().
		Str("user_id", userID.String()).
		Int("amount", amount).
		Str("tx_type", string(txType)).
		Int("balance", balance).
		Msg("credits granted")
	return balance, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.ListTransactions(ctx, userID.String(), Pagination{Limit: limit, Offset: offset})
}

func (s *service) SearchTransactions(ctx context.Context, filters SearchFilters) ([]CreditTransaction, error) {
	return s.repo.SearchTransactions(ctx, filters)
}
