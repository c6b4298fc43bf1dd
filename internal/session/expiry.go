package session

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var timeNow = time.Now

// ParseExpiry reads the "exp" claim of a JWT credential without verifying its
// signature: the API is the authority on validity, this is only used to
// report on the session. Opaque or malformed credentials yield the zero time.
func ParseExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}

	return claims.ExpiresAt.Time
}
