package history

import "errors"

// Sentinel errors returned by History operations.
var (
	// ErrNoStore is returned when History is created without a store.
	ErrNoStore = errors.New("history: store is required")

	// ErrNoPublicURL is returned when History is created without a public URL or verifier.
	ErrNoPublicURL = errors.New("history: public URL is required")

	// ErrInvalidClaims is returned when a token fails signature, expiry, audience or shape checks.
	ErrInvalidClaims = errors.New("history: invalid claims")

	// ErrForbidden is returned when a token is valid but its issuer is not allowed to act.
	ErrForbidden = errors.New("history: forbidden")

	// ErrRegistrationNotFound is returned when no registration exists for a client.
	ErrRegistrationNotFound = errors.New("history: registration not found")

	// ErrMessageNotFound is returned when a pagination origin does not exist in the topic.
	ErrMessageNotFound = errors.New("history: message not found")

	// ErrRelayRegistration is returned when the relay handshake fails.
	ErrRelayRegistration = errors.New("history: relay registration failed")

	// ErrInvalidInput is returned for malformed requests (missing topic, bad page size, bad direction).
	ErrInvalidInput = errors.New("history: invalid input")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("history: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("history: migration failed")
)

// Error is a failure with a message safe to show to API callers. It matches
// its Kind sentinel and its cause with errors.Is.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func newError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

// Unwrap returns the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}
