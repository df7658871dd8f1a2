package errors

import (
	"errors"
	"fmt"
)

// Re-exported so handlers can import this package unaliased.
var (
	New  = errors.New
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// ErrMalformedStatus marks a registration status that breaks its own invariants,
// e.g. registered with no registrations.
var ErrMalformedStatus = errors.New("malformed registration status")

// Malformed returns an error matching ErrMalformedStatus with extra detail.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedStatus, fmt.Sprintf(format, args...))
}

// FetchError is returned when the current status could not be obtained.
type FetchError struct {
	Account string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch registration status for account %s: %v", e.Account, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StoreError is returned when the snapshot store fails. Op is "get" or "put".
type StoreError struct {
	Account string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("snapshot %s for account %s: %v", e.Op, e.Account, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NotifyError is returned when a message could not be published.
type NotifyError struct {
	Channel string
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Channel, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// ProviderError carries a non-success status reported by voip.ms itself,
// such as "invalid_credentials".
type ProviderError struct {
	Status string
}

func (e *ProviderError) Error() string {
	return "provider returned status " + e.Status
}

// ProviderStatus returns the provider status code carried anywhere in err's chain.
func ProviderStatus(err error) (string, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Status, true
	}
	return "", false
}
