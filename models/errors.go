package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Recoverable selection-state signals. They are returned to the caller and
// shown to the user; they never abort a session.
var (
	ErrSelectionLimitExceeded = eris.New("selection limit exceeded")
	ErrInsufficientSelection  = eris.New("at least two properties are required to compare")
	ErrUnknownProperty        = eris.New("property is not in the current list")
)

// UpstreamFetchError wraps a failure of the Property Repository.
type UpstreamFetchError struct {
	City     string
	Page     int
	TimedOut bool
	Err      error
}

// NewUpstreamFetchError wraps err for the given city and page.
func NewUpstreamFetchError(city string, page int, err error) *UpstreamFetchError {
	return &UpstreamFetchError{
		City:     city,
		Page:     page,
		TimedOut: errors.Is(err, context.DeadlineExceeded),
		Err:      err,
	}
}

func (e *UpstreamFetchError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("fetch properties for %q page %d timed out: %v", e.City, e.Page, e.Err)
	}
	return fmt.Sprintf("fetch properties for %q page %d: %v", e.City, e.Page, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}
