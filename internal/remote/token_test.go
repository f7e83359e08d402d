package remote

import (
	"testing"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
		Subject:   "user-1",
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

func TestCheckToken(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	assert.ErrorIs(t, CheckToken("", now), common.ErrMissingToken)
	assert.ErrorIs(t, CheckToken("   ", now), common.ErrMissingToken)
	assert.NoError(t, CheckToken("opaque-api-key", now))
	assert.NoError(t, CheckToken(signed(t, now.Add(time.Hour)), now))
	assert.ErrorIs(t, CheckToken(signed(t, now.Add(-time.Second)), now), common.ErrTokenExpired)
	assert.ErrorIs(t, CheckToken("a.b.c", now), common.ErrInvalidToken)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	got, ok := TokenExpiry(signed(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = TokenExpiry("opaque")
	assert.False(t, ok)
}
