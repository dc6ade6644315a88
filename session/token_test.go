package session

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestSubjectFromToken(t *testing.T) {
	got, err := SubjectFromToken(signedToken(t, jwt.MapClaims{"username": "alice"}))
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
}

func TestSubjectFallsBackToSub(t *testing.T) {
	got, err := SubjectFromToken(signedToken(t, jwt.MapClaims{"sub": "bob"}))
	require.NoError(t, err)
	assert.Equal(t, "bob", got)
}

func TestSubjectPrefersUsername(t *testing.T) {
	got, err := SubjectFromToken(signedToken(t, jwt.MapClaims{"sub": "id-1", "username": "alice"}))
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
}

func TestSubjectErrors(t *testing.T) {
	_, err := SubjectFromToken("not-a-jwt")
	assert.Error(t, err)

	_, err = SubjectFromToken(signedToken(t, jwt.MapClaims{"iss": "svc"}))
	assert.Error(t, err)
}
