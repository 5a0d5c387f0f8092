// Package tokens issues and verifies signed bearer tokens (HS256). The codec
// is pure: it holds key material and a clock, never storage.
package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes short-lived access tokens from long-lived refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the payload carried by every issued token. Subject, JTI (ID),
// IssuedAt and ExpiresAt live in the embedded RegisteredClaims.
type Claims struct {
	Kind      Kind   `json:"kind"`
	Tenant    string `json:"tid,omitempty"`
	SessionID string `json:"sid,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// KeyFunc supplies the current HMAC key material. Wrapping the key in a func
// lets a file watcher rotate it without restarting the codec.
type KeyFunc func() []byte

// StaticKey returns a KeyFunc over fixed key material.
func StaticKey(secret []byte) KeyFunc {
	return func() []byte { return secret }
}

// Codec encodes and decodes signed tokens.
type Codec struct {
	key KeyFunc
	now func() time.Time
}

func NewCodec(key KeyFunc) *Codec {
	return &Codec{key: key, now: time.Now}
}

// WithClock overrides the codec clock. Used by tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Issue signs a new token for subject and returns the opaque string together
// with its claims (JTI, expiry) so the caller can register it elsewhere.
// The JTI is a v4 UUID: 128 bits of randomness, unique for any lifetime the
// blacklist could be asked about it.
func (c *Codec) Issue(subject, tenant, sessionID, role string, kind Kind, ttl time.Duration) (string, *Claims, error) {
	now := c.now()
	claims := &Claims{
		Kind:      kind,
		Tenant:    tenant,
		SessionID: sessionID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.key())
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Decode verifies the signature first, then expiry, and only then returns the
// embedded claims. All failures map onto the package sentinels.
func (c *Codec) Decode(signed string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	claims := &Claims{}
	tok, err := parser.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return c.key(), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignature
		default:
			return nil, ErrMalformed
		}
	}
	if !tok.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}
