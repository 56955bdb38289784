package credit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository is the backing store for credit accounts and the ledger.
// Debit and Credit must change the balance and append the ledger row atomically.
type Repository interface {
	Debit(ctx context.Context, userID string, amount int, meta TxMeta) (int, error)
	Credit(ctx context.Context, userID string, amount int, txType TxType, meta TxMeta) (int, error)
	GetBalance(ctx context.Context, userID string) (int, error)
	ListTransactions(ctx context.Context, userID string, pagination Pagination) ([]CreditTransaction, error)
	SearchTransactions(ctx context.Context, filters SearchFilters) ([]CreditTransaction, error)
}

// CreditRepository provides credit ledger and balance operations on PostgreSQL.
type CreditRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// Debit decrements the balance only if it covers amount and writes the ledger row in the
// same transaction. The WHERE clause re-validates sufficiency at commit time, so concurrent
// debits can never drive the balance negative.
func (r *CreditRepository) Debit(ctx context.Context, userID string, amount int, meta TxMeta) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	defer tx.Rollback()

	var balance int
	err = tx.GetContext(ctx2, &balance, `
		UPDATE users
		SET credit_balance = credit_balance - $2, updated_at = now()
		WHERE id = $1 AND credit_balance >= $2
		RETURNING credit_balance
	`, userID, amount)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.GetContext(ctx2, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID); err != nil {
			return 0, fmt.Errorf("%w: check user: %v", ErrInternal, err)
		}
		if !exists {
			return 0, ErrUserNotFound
		}
		return 0, ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("%w: update user balance: %v", ErrInternal, err)
	}

	if err := r.insertLedger(ctx2, tx, userID, -amount, TxTypeDeduction, meta); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit tx: %v", ErrInternal, err)
	}

	return balance, nil
}

// Credit adds amount to the balance and writes the ledger row in one transaction.
func (r *CreditRepository) Credit(ctx context.Context, userID string, amount int, txType TxType, meta TxMeta) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !txType.IsGrant() {
		return 0, ErrInvalidTxType
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	defer tx.Rollback()

	var balance int
	err = tx.GetContext(ctx2, &balance, `
		UPDATE users
		SET credit_balance = credit_balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING credit_balance
	`, userID, amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: update user balance: %v", ErrInternal, err)
	}

	if err := r.insertLedger(ctx2, tx, userID, amount, txType, meta); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit tx: %v", ErrInternal, err)
	}

	return balance, nil
}

func (r *CreditRepository) GetBalance(ctx context.Context, userID string) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int
	err := r.db.GetContext(ctx2, &balance, `SELECT credit_balance FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("%w: get balance: %v", ErrInternal, err)
	}

	return balance, nil
}

const selectTransactions = `
	SELECT id, user_id, amount_delta, tx_type, reference_type, related_entity_id, metadata, description, created_at
	FROM credit_transactions`

func (r *CreditRepository) ListTransactions(ctx context.Context, userID string, pagination Pagination) ([]CreditTransaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	limit := pagination.Limit
	if limit <= 0 {
		limit = 20
	}

	transactions := make([]CreditTransaction, 0)
	err := r.db.SelectContext(ctx2, &transactions, selectTransactions+`
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, pagination.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", ErrInternal, err)
	}

	return transactions, nil
}

func (r *CreditRepository) SearchTransactions(ctx context.Context, filters SearchFilters) ([]CreditTransaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filters.UserID != nil && *filters.UserID != "" {
		add("user_id = $%d", *filters.UserID)
	}
	if filters.TxType != nil && *filters.TxType != "" {
		add("tx_type = $%d", *filters.TxType)
	}
	if filters.ReferenceType != nil && *filters.ReferenceType != "" {
		add("reference_type = $%d", *filters.ReferenceType)
	}
	if filters.RelatedEntityID != nil && *filters.RelatedEntityID != "" {
		add("related_entity_id = $%d", *filters.RelatedEntityID)
	}
	if filters.DateFrom != nil {
		add("created_at >= $%d", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		add("created_at <= $%d", *filters.DateTo)
	}

	query := selectTransactions
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, filters.Offset)

	transactions := make([]CreditTransaction, 0)
	if err := r.db.SelectContext(ctx2, &transactions, query, args...); err != nil {
		return nil, fmt.Errorf("%w: search transactions: %v", ErrInternal, err)
	}

	return transactions, nil
}

func (r *CreditRepository) insertLedger(ctx context.Context, tx *sqlx.Tx, userID string, amountDelta int, txType TxType, meta TxMeta) error {
	metadata, err := encodeMetadata(meta.Metadata)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (
			user_id, amount_delta, tx_type, reference_type, related_entity_id, metadata, description
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, userID, amountDelta, string(txType), nullIfEmpty(meta.ReferenceType), nullIfEmpty(meta.RelatedEntityID), metadata, describe(txType, meta))
	if err != nil {
		return fmt.Errorf("%w: insert transaction: %v", ErrInternal, err)
	}

	return nil
}

func encodeMetadata(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: encode metadata: %v", ErrInternal, err)
	}
	return b, nil
}

func describe(txType TxType, meta TxMeta) string {
	if d := strings.TrimSpace(meta.Description); d != "" {
		return d
	}
	if meta.ReferenceType != "" {
		return fmt.Sprintf("%s: %s", txType, meta.ReferenceType)
	}
	return "credit balance adjustment"
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
