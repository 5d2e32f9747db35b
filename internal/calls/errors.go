package calls

import "errors"

var (
	// ErrCallNotFound is returned when no call has the external id.
	ErrCallNotFound = errors.New("calls: call not found")

	// ErrTenantMismatch is returned when an event names a different tenant than the stored call.
	ErrTenantMismatch = errors.New("calls: call belongs to another tenant")

	// ErrUpstream wraps failures fetching call detail from the provider.
	ErrUpstream = errors.New("calls: upstream fetch failed")

	// ErrPersistence wraps store write failures.
	ErrPersistence = errors.New("calls: persistence failed")
)
