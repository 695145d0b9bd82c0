package remote

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "usr-1",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestTokenHolder_SetNotifiesOnChange(t *testing.T) {
	var got []string
	h := NewTokenHolder(func(token string) { got = append(got, token) }, nil)

	h.Set("tok-a")
	h.Set("tok-a")
	h.Set("tok-b")
	h.Clear()

	require.Equal(t, []string{"tok-a", "tok-b"}, got)
	require.Empty(t, h.Token())
}

func TestTokenHolder_AbsorbIgnoresEmpty(t *testing.T) {
	h := NewTokenHolder(nil, nil)
	h.Set("tok-a")
	h.Absorb("")
	require.Equal(t, "tok-a", h.Token())
	h.Absorb("tok-b")
	require.Equal(t, "tok-b", h.Token())
}

func TestTokenHolder_ExpiresWithin(t *testing.T) {
	now := time.Now()
	h := NewTokenHolder(nil, nil)

	h.Set(signedToken(t, now.Add(10*time.Minute)))
	require.False(t, h.ExpiresWithin(now, time.Minute))
	require.True(t, h.ExpiresWithin(now, 15*time.Minute))

	h.Set(signedToken(t, now.Add(-time.Minute)))
	require.True(t, h.ExpiresWithin(now, 0))
}

func TestTokenHolder_OpaqueTokenNeverExpiresLocally(t *testing.T) {
	h := NewTokenHolder(nil, nil)
	h.Set("opaque-session-id")
	require.False(t, h.ExpiresWithin(time.Now(), time.Hour))

	h.Clear()
	require.False(t, h.ExpiresWithin(time.Now(), time.Hour))
}
