package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTerm is returned for an empty term or one that is empty after splitting on "/".
	ErrInvalidTerm = errors.New("invalid term")
	// ErrInvalidInput is returned for out-of-domain numeric input to the bet-sizing calculator.
	ErrInvalidInput = errors.New("invalid input")
)

// FetchError is a genuine provider failure for one (ticker, period) key.
// "No transcript for this quarter" is not a FetchError.
type FetchError struct {
	Ticker  string
	Year    int
	Quarter int
	Err     error
}

func (e *FetchError) Error() string {
	if e.Year == 0 {
		return fmt.Sprintf("fetch failed for %s: %v", e.Ticker, e.Err)
	}
	return fmt.Sprintf("fetch failed for %s Q%d %d: %v", e.Ticker, e.Quarter, e.Year, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
