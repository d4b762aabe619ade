// Package claims verifies and mints the signed JWT claims exchanged with
// clients and the relay.
//
// Three claim shapes exist: bearer claims presented by clients calling the
// API, pass-through watch-register claims that a client signs for the relay,
// and watch-event claims the relay signs when it delivers a webhook. All of
// them embed Basic and are signed with EdDSA by the ed25519 key encoded in
// their did:key issuer.
package claims

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Watch actions carried in the "act" claim.
const (
	ActionWatchRegister = "irn_watchRegister"
	ActionWatchEvent    = "irn_watchEvent"
)

// Watch types carried in the "typ" claim.
const (
	TypeSubscriber = "subscriber"
	TypePublisher  = "publisher"
)

// Basic holds the claims shared by every token.
type Basic struct {
	Issuer    string `json:"iss"`
	Audience  string `json:"aud"`
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// Claims is the closed set of claim shapes handled by this package.
type Claims interface {
	jwt.Claims
	basic() *Basic
}

// Bearer are the claims of an API bearer token.
type Bearer struct {
	Basic
}

// WatchRegister are the claims a client signs to ask the relay to deliver
// events for the listed tags to a webhook.
type WatchRegister struct {
	Basic
	Action     string   `json:"act"`
	Type       string   `json:"typ"`
	WebhookURL string   `json:"whu"`
	Tags       []uint32 `json:"tag"`
	Statuses   []string `json:"sts"`
}

// WatchEvent are the claims the relay signs when delivering an event.
type WatchEvent struct {
	Basic
	Action     string `json:"act"`
	Type       string `json:"typ"`
	WebhookURL string `json:"whu"`
	Event      Event  `json:"evt"`
}

// Event is the payload of a watch event.
type Event struct {
	MessageID   string `json:"messageId,omitempty"`
	Status      string `json:"status"`
	Topic       string `json:"topic"`
	Message     string `json:"message"`
	PublishedAt int64  `json:"publishedAt"`
	Tag         uint32 `json:"tag"`
}

var (
	_ Claims = (*Bearer)(nil)
	_ Claims = (*WatchRegister)(nil)
	_ Claims = (*WatchEvent)(nil)
)

// NewBasic returns Basic claims issued now and valid for ttl.
// A zero ttl produces a token without expiry.
func NewBasic(aud, sub string, ttl time.Duration) Basic {
	now := time.Now()
	b := Basic{
		Audience: aud,
		Subject:  sub,
		IssuedAt: now.Unix(),
	}
	if ttl > 0 {
		b.ExpiresAt = now.Add(ttl).Unix()
	}
	return b
}

func (b *Basic) basic() *Basic { return b }

// GetExpirationTime implements jwt.Claims.
func (b *Basic) GetExpirationTime() (*jwt.NumericDate, error) {
	if b.ExpiresAt == 0 {
		return nil, nil //nolint:nilnil // absent expiry
	}
	return jwt.NewNumericDate(time.Unix(b.ExpiresAt, 0)), nil
}

// GetIssuedAt implements jwt.Claims.
func (b *Basic) GetIssuedAt() (*jwt.NumericDate, error) {
	if b.IssuedAt == 0 {
		return nil, nil //nolint:nilnil // absent iat
	}
	return jwt.NewNumericDate(time.Unix(b.IssuedAt, 0)), nil
}

// GetNotBefore implements jwt.Claims.
func (b *Basic) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil //nolint:nilnil // nbf is not used
}

// GetIssuer implements jwt.Claims.
func (b *Basic) GetIssuer() (string, error) { return b.Issuer, nil }

// GetSubject implements jwt.Claims.
func (b *Basic) GetSubject() (string, error) { return b.Subject, nil }

// GetAudience implements jwt.Claims. The audience is a single string.
func (b *Basic) GetAudience() (jwt.ClaimStrings, error) {
	if b.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{b.Audience}, nil
}
