package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/pluginiq/internal/auth"
)

func TestIssueVerify(t *testing.T) {
	s := auth.NewSigner("secret")

	token, err := s.Issue(auth.Identity{UserID: "u1", Email: "a@acme.test", Role: auth.RoleAdmin, TenantID: "t1"})
	require.NoError(t, err)

	id, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "a@acme.test", id.Email)
	assert.Equal(t, "t1", id.TenantID)
	assert.True(t, id.IsAdmin())
}

func TestVerify_Rejects(t *testing.T) {
	s := auth.NewSigner("secret")
	token, err := s.Issue(auth.Identity{UserID: "u1"})
	require.NoError(t, err)

	body, _, _ := strings.Cut(token, ".")

	cases := map[string]string{
		"empty":          "",
		"no signature":   body,
		"garbage":        "not-a-token",
		"tampered body":  "e30." + strings.SplitN(token, ".", 2)[1],
		"other secret":   mustIssue(t, auth.NewSigner("other"), auth.Identity{UserID: "u1"}),
		"trailing bytes": token + "x",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Verify(tok)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestIssue_StandardClaims(t *testing.T) {
	s := auth.NewSigner("secret")
	token := mustIssue(t, s, auth.Identity{UserID: "u1", Email: "a@acme.test", Role: "member", TenantID: "t1"})

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	assert.Equal(t, jwt.SigningMethodHS256.Alg(), parsed.Method.Alg())

	c, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "u1", c["sub"])
	assert.Equal(t, "t1", c["tid"])
	assert.Equal(t, "member", c["role"])
	assert.Equal(t, "a@acme.test", c["email"])
	assert.Contains(t, c, "exp")
}

func TestVerify_RejectsUnsignedAndMissingSubject(t *testing.T) {
	s := auth.NewSigner("secret")

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Verify(unsigned)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Verify(anonymous)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Verify(noExpiry)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := auth.NewSigner("secret", auth.WithTTL(time.Hour), auth.WithClock(clock))

	token := mustIssue(t, s, auth.Identity{UserID: "u1"})

	now = now.Add(59 * time.Minute)
	_, err := s.Verify(token)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func mustIssue(t *testing.T, s *auth.Signer, id auth.Identity) string {
	t.Helper()
	token, err := s.Issue(id)
	require.NoError(t, err)
	return token
}
