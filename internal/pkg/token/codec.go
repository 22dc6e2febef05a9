// internal/pkg/token/codec.go
package token

import (
	"time"

	xerrors "tokenguard-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Config carries the signing configuration. A single shared secret and fixed
// issuer/audience strings, loaded once at startup. Rotating the secret
// invalidates every outstanding access token but not refresh sessions.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Codec is a stateless signer/verifier for short-lived access tokens.
// It never touches durable state; revocation checks belong to the caller.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewCodec builds a Codec from config. A missing secret is a fatal
// configuration error, not a runtime-recoverable one.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Secret == "" {
		return nil, xerrors.Wrap(xerrors.ErrConfig, "token codec requires a signing secret")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &Codec{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// TTL returns the access-token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue produces a compact signed access token for the given owner.
func (c *Codec) Issue(ownerID, role, email string) (string, error) {
	if len(c.secret) == 0 {
		return "", xerrors.Wrap(xerrors.ErrConfig, "token codec has no signing secret")
	}

	now := c.now()
	claims := &Claims{
		Role:      role,
		Email:     email,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   ownerID,
			Audience:  []string{c.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        ulid.Make().String(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.secret)
}

// Verify validates signature, issuer, audience, and expiry, in that order.
// Returns ErrTokenExpired, ErrTokenMalformed, or ErrConfig. It does not
// consult revocation state; that is the introspector's job.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	if len(c.secret) == 0 {
		return nil, xerrors.Wrap(xerrors.ErrConfig, "token codec has no signing secret")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	parsed, err := parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrTokenMalformed, err.Error())
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, xerrors.Wrap(xerrors.ErrTokenMalformed, "invalid token claims")
	}

	if claims.Issuer != c.issuer {
		return nil, xerrors.Wrap(xerrors.ErrTokenMalformed, "invalid issuer")
	}

	if !claims.VerifyAudience(c.audience, true) {
		return nil, xerrors.Wrap(xerrors.ErrTokenMalformed, "invalid audience")
	}

	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(c.now()) {
		return nil, xerrors.ErrTokenExpired
	}

	if claims.TokenType != TypeAccess {
		return nil, xerrors.Wrap(xerrors.ErrTokenMalformed, "token is not an access token")
	}

	return claims, nil
}
