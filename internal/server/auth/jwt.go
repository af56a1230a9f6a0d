// Package auth encodes and decodes the HS256 access tokens handed to
// back-office clients.
package auth

import (
	"errors"
	"time"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the registered claims plus the user's roles. Purpose is
// empty for access tokens and names the flow for single-purpose tokens such
// as password reset links. Password binds a reset token to the password
// hash it was issued against.
type Claims struct {
	jwt.RegisteredClaims
	Roles    []string `json:"roles,omitempty"`
	Purpose  string   `json:"purpose,omitempty"`
	Password string   `json:"pwd,omitempty"`
}

// Codec signs and verifies tokens with a shared secret. It holds no state
// besides the secret and the clock.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret []byte, opts ...Option) *Codec {
	c := &Codec{secret: secret, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Encode returns a signed token for subject valid for ttl. Registered claims
// in claims other than the subject, issue time, expiry and id are kept.
func (c *Codec) Encode(subject string, claims Claims, ttl time.Duration) (string, error) {
	now := c.now()
	claims.Subject = subject
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.ID = uuid.NewString()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies the signature and expiry of token and returns its claims.
// Errors are common.ErrInvalidSignature, common.ErrMalformedToken,
// common.ErrTokenExpired or common.ErrInvalidToken.
func (c *Codec) Decode(token string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, mapError(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// IsExpired reads the exp claim without verifying the signature. Tokens that
// cannot be parsed or carry no exp are reported as not expired; Decode is
// the authority on those.
func (c *Codec) IsExpired(token string) bool {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return common.ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return common.ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	default:
		return common.ErrInvalidToken
	}
}
