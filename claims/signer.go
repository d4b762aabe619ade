package claims

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer mints EdDSA tokens whose issuer is the did:key of its key.
type Signer struct {
	key ed25519.PrivateKey
	did string
}

// NewSigner wraps an existing private key.
func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{
		key: key,
		did: EncodeDIDKey(key.Public().(ed25519.PublicKey)),
	}
}

// GenerateSigner creates a signer with a fresh ed25519 keypair.
func GenerateSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("claims: generate key: %w", err)
	}
	return NewSigner(priv), nil
}

// DID returns the signer's did:key identity.
func (s *Signer) DID() string { return s.did }

// ClientID returns the signer's client identity.
func (s *Signer) ClientID() string {
	id, _ := ClientID(s.did) //nolint:errcheck // did is always well formed
	return id
}

// Sign sets the issuer to the signer's identity and returns the compact token.
func (s *Signer) Sign(c Claims) (string, error) {
	c.basic().Issuer = s.did
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("claims: sign: %w", err)
	}
	return token, nil
}
