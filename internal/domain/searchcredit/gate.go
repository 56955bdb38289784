package searchcredit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// BalanceReader reads a user's current credit balance.
type BalanceReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
}

// Gate checks that a balance covers a cost before any debit is attempted.
// It never mutates state; the atomic debit re-validates sufficiency on its own.
type Gate struct {
	balances BalanceReader
	reads    singleflight.Group
}

func NewGate(balances BalanceReader) *Gate {
	return &Gate{balances: balances}
}

// Check returns the verified balance, ErrBalanceUnavailable when the read fails,
// or *InsufficientCreditsError when the balance is below cost.
func (g *Gate) Check(ctx context.Context, userID uuid.UUID, cost int) (int, error) {
	balance, err := g.read(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}
	if balance < cost {
		return balance, &InsufficientCreditsError{Required: cost, Balance: balance}
	}
	return balance, nil
}

// read coalesces concurrent reads for the same user into one store round-trip.
func (g *Gate) read(ctx context.Context, userID uuid.UUID) (int, error) {
	// the shared read must not fail every waiter when the first caller goes away
	shared := context.WithoutCancel(ctx)
	ch := g.reads.DoChan(userID.String(), func() (interface{}, error) {
		return g.balances.GetBalance(shared, userID)
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}
