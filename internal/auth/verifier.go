// Package auth verifies bearer credentials issued by the external identity
// service. It holds no mutable state; verification is a pure function of the
// token and the shared secret.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired means the credential's expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid means signature or structure verification failed.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrAuthFailed covers any other verification fault.
	ErrAuthFailed = errors.New("authentication failed")
)

// Claims carries the identity and entitlements extracted from a verified token.
type Claims struct {
	UserID       string
	IsController bool
}

// tokenClaims is the wire shape of the JWT payload. The identity service sets
// userId for human accounts and isPD for accounts entitled to the controller
// role; sub is the fallback subject identifier.
type tokenClaims struct {
	UserID       string `json:"userId"`
	IsController bool   `json:"isPD"`
	jwt.RegisteredClaims
}

// Verifier validates HS256-signed tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks signature and expiry and extracts the claims.
func (v *Verifier) Verify(token string) (Claims, error) {
	var tc tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &tc, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return Claims{}, ErrTokenInvalid
	case err != nil:
		return Claims{}, ErrAuthFailed
	}
	if !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}

	userID := tc.UserID
	if userID == "" {
		userID = tc.Subject
	}

	return Claims{UserID: userID, IsController: tc.IsController}, nil
}
