package authn

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenWithClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestSubjectFromToken_SubClaim(t *testing.T) {
	token := tokenWithClaims(t, jwt.MapClaims{"sub": "user-42"})

	subject, err := SubjectFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)
}

func TestSubjectFromToken_UserIDClaimFallback(t *testing.T) {
	token := tokenWithClaims(t, jwt.MapClaims{"userId": "user-42"})

	subject, err := SubjectFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)
}

func TestSubjectFromToken_NoSubject(t *testing.T) {
	token := tokenWithClaims(t, jwt.MapClaims{"scope": "read"})

	_, err := SubjectFromToken(token)
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestSubjectFromToken_Malformed(t *testing.T) {
	_, err := SubjectFromToken("not-a-jwt")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSubject)
}

func TestSubjectFromToken_IgnoresSignature(t *testing.T) {
	// The extractor never verifies: a token signed with an unknown key
	// still yields its subject. Callers must treat the result as a cache
	// partition only.
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-42"}).
		SignedString([]byte("some-other-key"))
	require.NoError(t, err)

	subject, err := SubjectFromToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)
}
