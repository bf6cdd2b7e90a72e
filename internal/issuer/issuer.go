package issuer

import (
	"context"
	"fmt"
)

// Request describes one gift card to mint.
type Request struct {
	DaysPerCard int
	Secret      string
}

// Issuer mints gift card codes.
type Issuer interface {
	Issue(ctx context.Context, request Request) (string, error)
}

// Error is returned when no card was produced. StatusCode is zero for network failures.
type Error struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("issuer: status %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("issuer: status %d", e.StatusCode)
	}
	return fmt.Sprintf("issuer: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
