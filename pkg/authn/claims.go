package authn

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject is returned when a token carries no usable subject claim.
var ErrNoSubject = errors.New("authn: token has no subject claim")

// SubjectFromToken extracts the stable subject id from a JWT without
// verifying its signature. The result is only safe to use as a cache
// partition key; authentication always goes through TokenValidator.
func SubjectFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}

	// Some issuers put the subject in a custom claim instead of "sub".
	if userID, ok := claims["userId"].(string); ok && userID != "" {
		return userID, nil
	}

	return "", ErrNoSubject
}
