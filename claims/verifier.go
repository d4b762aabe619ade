package claims

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway is the clock skew tolerated on exp and iat.
const DefaultLeeway = 2 * time.Minute

// Verifier checks signature, expiry and audience of inbound tokens.
type Verifier struct {
	audience         string
	verifySignatures bool
	leeway           time.Duration
	now              func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithoutSignatureCheck skips EdDSA signature verification. Expiry, audience
// and action checks still apply. Intended for local development only.
func WithoutSignatureCheck() VerifierOption {
	return func(v *Verifier) { v.verifySignatures = false }
}

// WithLeeway sets the tolerated clock skew.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.leeway = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier returns a Verifier that expects audience on bearer and
// watch-event tokens.
func NewVerifier(audience string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		audience:         audience,
		verifySignatures: true,
		leeway:           DefaultLeeway,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Audience returns the audience the verifier expects.
func (v *Verifier) Audience() string { return v.audience }

// VerifyBearer verifies an API bearer token.
func (v *Verifier) VerifyBearer(token string) (*Bearer, error) {
	c := &Bearer{}
	if err := v.verify(token, c); err != nil {
		return nil, err
	}
	if err := v.checkAudience(&c.Basic); err != nil {
		return nil, err
	}
	return c, nil
}

// VerifyWatchRegister verifies a pass-through watch-register token. Its
// audience is the relay, so only signature, expiry and action are checked.
func (v *Verifier) VerifyWatchRegister(token string) (*WatchRegister, error) {
	c := &WatchRegister{}
	if err := v.verify(token, c); err != nil {
		return nil, err
	}
	if c.Action != ActionWatchRegister {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedAction, c.Action)
	}
	return c, nil
}

// VerifyWatchEvent verifies a token delivered by the relay to the webhook.
func (v *Verifier) VerifyWatchEvent(token string) (*WatchEvent, error) {
	c := &WatchEvent{}
	if err := v.verify(token, c); err != nil {
		return nil, err
	}
	if err := v.checkAudience(&c.Basic); err != nil {
		return nil, err
	}
	if c.Action != ActionWatchEvent {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedAction, c.Action)
	}
	return c, nil
}

func (v *Verifier) verify(token string, c Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithIssuedAt(),
	)

	if !v.verifySignatures {
		if _, _, err := parser.ParseUnverified(token, c); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if _, err := DecodeDIDKey(c.basic().Issuer); err != nil {
			return err
		}
		return v.checkTimes(c.basic())
	}

	_, err := parser.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		iss, err := t.Claims.GetIssuer()
		if err != nil {
			return nil, err
		}
		return DecodeDIDKey(iss)
	})
	if err != nil {
		return translate(err)
	}
	return nil
}

func (v *Verifier) checkAudience(b *Basic) error {
	if b.Audience != v.audience {
		return fmt.Errorf("%w: expected %q, got %q", ErrAudienceMismatch, v.audience, b.Audience)
	}
	return nil
}

func (v *Verifier) checkTimes(b *Basic) error {
	now := v.now()
	if b.ExpiresAt != 0 && now.After(time.Unix(b.ExpiresAt, 0).Add(v.leeway)) {
		return ErrExpired
	}
	if b.IssuedAt != 0 && time.Unix(b.IssuedAt, 0).After(now.Add(v.leeway)) {
		return ErrNotYetValid
	}
	return nil
}

// translate maps jwt library errors onto this package's sentinels.
func translate(err error) error {
	switch {
	case errors.Is(err, ErrInvalidDIDKey):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued), errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
