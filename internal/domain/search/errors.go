package search

import "errors"

var (
	ErrSearchFailed = errors.New("field rep search failed")

	// ErrPageOutOfRange is returned before metering, so nothing is charged.
	ErrPageOutOfRange = errors.New("page out of range")
)
