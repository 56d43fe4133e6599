// Package token reads the self-describing payload of a bearer
// credential without verifying it. The decoded claims pace proactive
// renewal and nothing else; the server remains the sole authority on
// credential validity.
package token

import (
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var ErrNoClaims = errors.New("credential carries no readable claims")

// Decode parses the unverified claims of a bearer credential.
func Decode(raw string) (jwtlib.MapClaims, error) {
	parsed, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "[token.Decode] parse")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.Wrap(ErrNoClaims, "[token.Decode]")
	}
	return claims, nil
}

// ExpiryMillis returns the credential's expiry claim in epoch
// milliseconds. The bool is false when the credential is malformed or
// lacks the claim; callers treat that as "cannot schedule".
func ExpiryMillis(raw string) (int64, bool) {
	claims, err := Decode(raw)
	if err != nil {
		return 0, false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return 0, false
	}
	return int64(exp) * 1000, true
}
