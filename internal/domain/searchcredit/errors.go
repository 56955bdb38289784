package searchcredit

import (
	"errors"
	"fmt"
)

var (
	// ErrBalanceUnavailable: the balance read failed; nothing was charged or searched
	ErrBalanceUnavailable = errors.New("unable to check credit balance")

	// ErrInsufficientCredits: the balance is below the submission's cost
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrDebitFailed: the store rejected or failed the debit; entitlements are unchanged
	ErrDebitFailed = errors.New("unable to process credit payment")

	// ErrSessionUnavailable: the session's entitlements could not be read, so the cost is unknown
	ErrSessionUnavailable = errors.New("unable to load search session")
)

// InsufficientCreditsError carries the amount the user must have to run the search.
type InsufficientCreditsError struct {
	Required int
	Balance  int
}

func (e *InsufficientCreditsError) Error() string {
	if e.Required == 1 {
		return "You need 1 credit for this search"
	}
	return fmt.Sprintf("You need %d credits for this search", e.Required)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}
