package credit

import "errors"

var (
	// ErrInsufficientCredits is returned when the balance is below the requested amount at commit time
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned when amount is <= 0
	ErrInvalidAmount = errors.New("invalid amount: must be greater than 0")

	// ErrInvalidTxType is returned for a grant with a non-grant transaction type
	ErrInvalidTxType = errors.New("invalid transaction type")

	// ErrUserNotFound is returned when the credit account does not exist
	ErrUserNotFound = errors.New("user not found")

	ErrInternal = errors.New("internal error")
)
