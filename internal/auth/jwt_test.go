package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier("secret")

	token, err := v.Issue(Identity{UserID: "u-1", Name: "Grace", Role: RoleCounselor}, time.Hour)
	require.NoError(t, err)

	id, err := v.ParseBearer("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.UserID)
	assert.Equal(t, "Grace", id.Name)
	assert.True(t, id.Privileged())
}

func TestVerifyDefaultsToStudent(t *testing.T) {
	v := NewVerifier("secret")

	token, err := v.Issue(Identity{UserID: "u-2"}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, id.Role)
	assert.False(t, id.Privileged())
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("secret")

	other, err := NewVerifier("other").Issue(Identity{UserID: "u"}, time.Hour)
	require.NoError(t, err)
	expired, err := v.Issue(Identity{UserID: "u"}, -time.Minute)
	require.NoError(t, err)
	noSubject, err := v.Issue(Identity{}, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong key":  other,
		"expired":    expired,
		"no subject": noSubject,
		"alg none":   none,
		"garbage":    "not-a-token",
	} {
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestParseBearerMissing(t *testing.T) {
	v := NewVerifier("secret")

	for _, header := range []string{"", "Basic abc", "bearer x"} {
		_, err := v.ParseBearer(header)
		assert.ErrorIs(t, err, ErrMissingToken, header)
	}
}
