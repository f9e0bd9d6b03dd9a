// Package auth turns bearer tokens into rbac principals.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/snapgallery/backoffice/internal/rbac"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("auth: invalid token")

const issuer = "backoffice"

// Claims is the token payload. Subject carries the principal id.
type Claims struct {
	Role string `json:"role"`
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Principal verifies tokenString and returns the principal it names.
func (v *Verifier) Principal(tokenString string) (rbac.Principal, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil || !tok.Valid {
		return rbac.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return rbac.Principal{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	role, ok := rbac.ParseRole(claims.Role)
	if !ok {
		return rbac.Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	kind := rbac.IdentityKind(claims.Kind)
	if !kind.Valid() || kind == rbac.KindSystem {
		return rbac.Principal{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidToken, claims.Kind)
	}
	return rbac.Principal{ID: id, Role: role, Kind: kind}, nil
}

// Signer mints tokens accepted by a Verifier with the same secret.
type Signer struct {
	secret []byte
}

// NewSigner builds a signer for secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Mint signs a token for p valid from now for ttl.
func (s *Signer) Mint(p rbac.Principal, now time.Time, ttl time.Duration) (string, error) {
	if p.ID <= 0 || !p.Role.Valid() || !p.Kind.Valid() || p.Kind == rbac.KindSystem {
		return "", fmt.Errorf("auth: cannot mint token for %+v", p)
	}
	claims := Claims{
		Role: string(p.Role),
		Kind: string(p.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(p.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
