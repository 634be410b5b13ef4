package token

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	key     *rsa.PrivateKey
)

func newTestIssuer(t *testing.T, accessTTL, refreshTTL time.Duration) *Issuer {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		key = k
	})
	return NewIssuerFromKeys(key, "crm-backend-test", accessTTL, refreshTTL)
}

func TestGeneratePairAndVerify(t *testing.T) {
	issuer := newTestIssuer(t, 15*time.Minute, 7*24*time.Hour)

	pair, err := issuer.GeneratePair("user-1", "alice@example.com",
		[]string{"user", "admin"}, "org-1", "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := issuer.Verify(pair.AccessToken, "access")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, []string{"user", "admin"}, claims.Roles)
	assert.Equal(t, "org-1", claims.OrganizationID)
	assert.Equal(t, "session-1", claims.SessionID)

	refreshClaims, err := issuer.Verify(pair.RefreshToken, "refresh")
	require.NoError(t, err)
	assert.Equal(t, "user-1", refreshClaims.Subject)
	assert.Equal(t, "session-1", refreshClaims.SessionID)
}

func TestVerifyRejectsWrongTyp(t *testing.T) {
	issuer := newTestIssuer(t, 15*time.Minute, 7*24*time.Hour)

	pair, err := issuer.GeneratePair("user-1", "alice@example.com", nil, "", "session-1")
	require.NoError(t, err)

	// A refresh token must never pass as an access token.
	_, err = issuer.Verify(pair.RefreshToken, "access")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer := newTestIssuer(t, -time.Minute, 7*24*time.Hour)

	pair, err := issuer.GeneratePair("user-1", "alice@example.com", nil, "", "session-1")
	require.NoError(t, err)

	_, err = issuer.Verify(pair.AccessToken, "access")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsTampering(t *testing.T) {
	issuer := newTestIssuer(t, 15*time.Minute, 7*24*time.Hour)

	pair, err := issuer.GeneratePair("user-1", "alice@example.com", nil, "", "session-1")
	require.NoError(t, err)

	tampered := pair.AccessToken[:len(pair.AccessToken)-4] + "AAAA"
	_, err = issuer.Verify(tampered, "access")
	assert.Error(t, err)
}

func TestHashIsStableAndOpaque(t *testing.T) {
	assert.Equal(t, Hash("some-token"), Hash("some-token"))
	assert.NotEqual(t, Hash("some-token"), Hash("other-token"))
	assert.Len(t, Hash("some-token"), 64)
	assert.NotContains(t, Hash("some-token"), "some-token")
}
