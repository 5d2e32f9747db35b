package contacts

import "errors"

var (
	// ErrContactNotFound is returned when no contact matches the lookup
	ErrContactNotFound = errors.New("contacts: contact not found")

	// ErrNoPhone is returned when a call carries no usable counter-party number
	ErrNoPhone = errors.New("contacts: phone number missing")
)
