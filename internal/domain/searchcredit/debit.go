package searchcredit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clearmarket/clearmarket-api/internal/domain/credit"
)

// Spender performs the store-side atomic conditional debit.
type Spender interface {
	Spend(ctx context.Context, userID uuid.UUID, amount int, meta credit.TxMeta) (int, error)
}

// Debit charges quote.Cost credits for the dimensions in quote.Charge and returns
// the balance after the debit. Any failure is reported as ErrDebitFailed.
func Debit(ctx context.Context, spender Spender, key SessionKey, quote Quote, f Filters) (int, error) {
	if quote.Cost <= 0 {
		return 0, fmt.Errorf("%w: non-positive cost %d", ErrDebitFailed, quote.Cost)
	}

	balance, err := spender.Spend(ctx, key.UserID, quote.Cost, debitMeta(key, quote, f))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDebitFailed, err)
	}
	return balance, nil
}

func debitMeta(key SessionKey, quote Quote, f Filters) credit.TxMeta {
	charged := make([]string, 0, len(quote.Charge))
	metadata := map[string]interface{}{
		"search_session_id":  key.SessionID,
		"credits_per_filter": CreditsPerDimension,
	}
	for _, d := range Dimensions {
		metadata[string(d)] = false
	}
	for _, d := range quote.Charge {
		charged = append(charged, string(d))
		metadata[string(d)] = true
	}
	metadata["dimensions"] = charged

	filters := map[string]interface{}{}
	if f.State != "" {
		filters["state"] = f.State
	}
	if len(f.Platforms) > 0 {
		filters["platforms"] = f.Platforms
	}
	if len(f.InspectionTypes) > 0 {
		filters["inspection_types"] = f.InspectionTypes
	}
	metadata["filters"] = filters

	return credit.TxMeta{
		ReferenceType:   credit.ReferenceSearchFilter,
		RelatedEntityID: key.SessionID,
		Description:     "Premium search filters: " + strings.Join(charged, ", "),
		Metadata:        metadata,
	}
}
