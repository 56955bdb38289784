package credit

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TxType defines supported credit transaction types.
type TxType string

const (
	TxTypeDeduction     TxType = "deduction"
	TxTypeRefund        TxType = "refund"
	TxTypePurchase      TxType = "purchase"
	TxTypeAdminGrant    TxType = "admin_grant"
	TxTypeReferralBonus TxType = "referral_bonus"
)

// IsGrant reports whether t adds credits to a balance.
func (t TxType) IsGrant() bool {
	switch t {
	case TxTypeRefund, TxTypePurchase, TxTypeAdminGrant, TxTypeReferralBonus:
		return true
	}
	return false
}

// Reference types used by credit consumers.
const (
	ReferenceSearchFilter    = "search_filter"
	ReferenceCoverageRequest = "coverage_request"
	ReferenceAdmin           = "admin"
	ReferencePayment         = "payment"
)

// TxMeta describes why a balance changed. Metadata is stored as JSONB on the ledger row.
type TxMeta struct {
	ReferenceType   string
	RelatedEntityID string
	Description     string
	Metadata        map[string]interface{}
}

// Pagination controls simple list pagination.
type Pagination struct {
	Limit  int
	Offset int
}

// SearchFilters provides admin-facing transaction filtering.
type SearchFilters struct {
	UserID          *string
	TxType          *string
	ReferenceType   *string
	RelatedEntityID *string
	DateFrom        *time.Time
	DateTo          *time.Time
	Limit           int
	Offset          int
}

// CreditTransaction is a ledger row. Rows are append-only.
type CreditTransaction struct {
	ID              string         `db:"id" json:"id"`
	UserID          string         `db:"user_id" json:"user_id"`
	AmountDelta     int            `db:"amount_delta" json:"amount_delta"`
	TxType          string         `db:"tx_type" json:"tx_type"`
	ReferenceType   *string        `db:"reference_type" json:"reference_type,omitempty"`
	RelatedEntityID *string        `db:"related_entity_id" json:"related_entity_id,omitempty"`
	Metadata        types.JSONText `db:"metadata" json:"metadata"`
	Description     string         `db:"description" json:"description"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}
