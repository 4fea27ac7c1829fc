package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(t *testing.T, now time.Time, ttl time.Duration) *TokenService {
	t.Helper()
	svc, err := NewTokenService(TokenServiceOptions{
		Secret: "test-secret",
		TTL:    ttl,
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc
}

func TestTokenServiceRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewTokenService(TokenServiceOptions{Secret: "   "})
	require.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, now, time.Hour)

	token, expires := svc.Sign("j1", "video.mp4")
	assert.Equal(t, now.Add(time.Hour).Unix(), expires.Unix())
	require.NoError(t, svc.Verify("j1", "video.mp4", token))
}

func TestTokenBoundToJobAndFile(t *testing.T) {
	t.Parallel()

	now := time.Now()
	svc := newTestTokenService(t, now, time.Hour)

	token, _ := svc.Sign("j1", "video.mp4")
	assert.ErrorIs(t, svc.Verify("j2", "video.mp4", token), ErrTokenInvalid)
	assert.ErrorIs(t, svc.Verify("j1", "other.mp4", token), ErrTokenInvalid)
}

func TestTokenExpires(t *testing.T) {
	t.Parallel()

	issued := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, issued, time.Minute)
	token, _ := svc.Sign("j1", "video.mp4")

	later := newTestTokenService(t, issued.Add(2*time.Minute), time.Minute)
	assert.ErrorIs(t, later.Verify("j1", "video.mp4", token), ErrTokenExpired)
}

func TestTokenRejectsGarbage(t *testing.T) {
	t.Parallel()

	svc := newTestTokenService(t, time.Now(), time.Hour)

	for _, token := range []string{"", "noseparator", "notanumber.abcd", "123."} {
		assert.ErrorIs(t, svc.Verify("j1", "f", token), ErrTokenInvalid, "token %q", token)
	}
}
