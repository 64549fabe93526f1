package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 1, 1, 9, 5, 0, 0, time.UTC)

func seal(t *testing.T, s string) string {
	t.Helper()
	enc, err := utils.Encrypt([]byte(s), []byte(testSecret))
	require.NoError(t, err)
	return enc
}

func testConfig() config.Config {
	return config.Config{
		SecretKey: testSecret,
		Dispatch:  config.Dispatch{RefreshMargin: 300 * time.Second},
	}
}

func tokenFixture(t *testing.T, expiresAt *time.Time) (*tokenService, *fakeConnections, *fakeProvider, *models.Connection) {
	t.Helper()

	refresh := seal(t, "refresh-1")
	conn := &models.Connection{
		ID:           1,
		WorkspaceID:  10,
		Platform:     models.PlatformYouTube,
		AccessToken:  seal(t, "stored-token"),
		RefreshToken: &refresh,
		ExpiresAt:    expiresAt,
		Status:       models.ConnectionStatusActive,
	}
	conns := newFakeConnections(conn)

	newExpiry := testNow.Add(time.Hour)
	yt := &fakeProvider{
		platform: models.PlatformYouTube,
		grant:    &TokenGrant{AccessToken: "fresh-token", ExpiresAt: &newExpiry},
	}
	registry, _ := newTestRegistry(t, yt)

	svc := NewTokenService(testConfig(), conns, registry, WithClock(func() time.Time { return testNow })).(*tokenService)
	return svc, conns, yt, conn
}

func at(t time.Time) *time.Time { return &t }

func TestAccessTokenFreshTokenSkipsRefresh(t *testing.T) {
	svc, conns, yt, conn := tokenFixture(t, at(testNow.Add(10*time.Minute)))

	token, err := svc.AccessToken(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, "stored-token", token)
	assert.Equal(t, 0, yt.refreshes)
	assert.Equal(t, 0, conns.updates)
}

func TestAccessTokenWithinMarginRefreshesOnce(t *testing.T) {
	svc, conns, yt, conn := tokenFixture(t, at(testNow.Add(2*time.Minute)))

	token, err := svc.AccessToken(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, 1, yt.refreshes)
	assert.Equal(t, 1, conns.updates)

	stored, _ := conns.GetByID(context.Background(), conn.ID)
	plain, err := utils.Decrypt(stored.AccessToken, []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", plain)
	assert.Equal(t, testNow.Add(time.Hour), *stored.ExpiresAt)
}

func TestAccessTokenExactlyAtMarginRefreshes(t *testing.T) {
	svc, _, yt, conn := tokenFixture(t, at(testNow.Add(300*time.Second)))

	_, err := svc.AccessToken(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, 1, yt.refreshes)
}

func TestAccessTokenWithoutExpiryRefreshes(t *testing.T) {
	svc, _, yt, conn := tokenFixture(t, nil)

	token, err := svc.AccessToken(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, 1, yt.refreshes)
}

func TestRefreshedTokenIsReusedInTheSameRun(t *testing.T) {
	svc, _, yt, conn := tokenFixture(t, at(testNow.Add(time.Minute)))
	stale := *conn

	first, err := svc.AccessToken(context.Background(), conn)
	require.NoError(t, err)

	// A second platform call that loaded the connection before the refresh
	// still sees the old expiry.
	second, err := svc.AccessToken(context.Background(), &stale)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, yt.refreshes)
}

func TestConcurrentAccessTokenRefreshesOnce(t *testing.T) {
	svc, _, yt, conn := tokenFixture(t, at(testNow.Add(time.Minute)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := *conn
			token, err := svc.AccessToken(context.Background(), &c)
			assert.NoError(t, err)
			assert.Equal(t, "fresh-token", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, yt.refreshes)
}

func TestRevokedRefreshMarksConnection(t *testing.T) {
	svc, conns, yt, conn := tokenFixture(t, at(testNow.Add(time.Minute)))
	yt.refreshErr = &TokenRefreshError{
		Platform:   models.PlatformYouTube,
		StatusCode: 400,
		Message:    "Token has been expired or revoked.",
		Revoked:    true,
	}

	_, err := svc.AccessToken(context.Background(), conn)

	var tre *TokenRefreshError
	require.ErrorAs(t, err, &tre)
	assert.True(t, tre.Revoked)
	assert.Equal(t, []int64{conn.ID}, conns.reauthIDs)
	assert.Equal(t, models.ConnectionStatusReauthRequired, conn.Status)

	_, err = svc.AccessToken(context.Background(), conn)
	require.ErrorAs(t, err, &tre)
	assert.Equal(t, 1, yt.refreshes)
}

func TestTransientRefreshFailureKeepsConnectionActive(t *testing.T) {
	svc, conns, yt, conn := tokenFixture(t, nil)
	yt.refreshErr = &TokenRefreshError{Platform: models.PlatformYouTube, StatusCode: 503, Message: "backend error", Transient: true}

	_, err := svc.AccessToken(context.Background(), conn)

	require.Error(t, err)
	assert.True(t, Retryable(err))
	assert.Empty(t, conns.reauthIDs)
	assert.Equal(t, models.ConnectionStatusActive, conn.Status)
}

func TestReauthRequiredConnectionIsNotRefreshed(t *testing.T) {
	svc, _, yt, conn := tokenFixture(t, nil)
	conn.Status = models.ConnectionStatusReauthRequired

	_, err := svc.AccessToken(context.Background(), conn)

	var tre *TokenRefreshError
	require.ErrorAs(t, err, &tre)
	assert.True(t, tre.Revoked)
	assert.Equal(t, 0, yt.refreshes)
}

func TestRefreshReturnsTokenWhenPersistFails(t *testing.T) {
	svc, conns, _, conn := tokenFixture(t, nil)
	conns.updateErr = errors.New("connection refused")

	token, err := svc.AccessToken(context.Background(), conn)

	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
}

func TestForcedRefreshIgnoresCache(t *testing.T) {
	svc, _, yt, conn := tokenFixture(t, nil)

	_, err := svc.AccessToken(context.Background(), conn)
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background(), conn)
	require.NoError(t, err)

	assert.Equal(t, 2, yt.refreshes)
}
