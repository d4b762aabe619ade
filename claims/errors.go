package claims

import "errors"

var (
	// ErrMalformed is returned for tokens that cannot be decoded.
	ErrMalformed = errors.New("claims: malformed token")

	// ErrInvalidSignature is returned when the EdDSA signature does not match the issuer key.
	ErrInvalidSignature = errors.New("claims: invalid signature")

	// ErrExpired is returned for tokens past their exp claim.
	ErrExpired = errors.New("claims: token expired")

	// ErrNotYetValid is returned for tokens issued in the future.
	ErrNotYetValid = errors.New("claims: token not yet valid")

	// ErrAudienceMismatch is returned when aud differs from the expected audience.
	ErrAudienceMismatch = errors.New("claims: audience mismatch")

	// ErrUnexpectedAction is returned when act is not the action the caller expects.
	ErrUnexpectedAction = errors.New("claims: unexpected action")

	// ErrInvalidDIDKey is returned for issuers that are not ed25519 did:key identifiers.
	ErrInvalidDIDKey = errors.New("claims: invalid did:key")
)
