// Package gateway delivers one-time codes through an external SMS provider.
// Delivery failures are a retryable error class distinct from verification
// failures.
package gateway

import (
	"context"
	"fmt"
)

// Sender delivers a one-time code to a phone number. Implementations must
// honor ctx cancellation and bound their own I/O with a timeout.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// ProviderError marks a transient delivery failure (provider unreachable,
// non-2xx response). Callers retry these with backoff before surfacing them.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("sms gateway: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
