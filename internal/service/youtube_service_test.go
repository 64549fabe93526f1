package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func youtubeMux(upload http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/media/video.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("not really a video"))
	})
	mux.HandleFunc("/upload/youtube/v3/videos", upload)
	return mux
}

func TestYoutubePublishReturnsVideoID(t *testing.T) {
	mux := youtubeMux(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29.valid", r.Header.Get("Authorization"))
		parts := strings.Split(strings.Join(r.URL.Query()["part"], ","), ",")
		assert.ElementsMatch(t, []string{"snippet", "status"}, parts)
		writeJSON(w, http.StatusOK, map[string]any{"id": "vid123", "kind": "youtube#video"})
	})
	srv, cfg := platformServer(t, mux)

	id, err := NewYoutubeService(cfg, srv.Client()).Publish(context.Background(), "ya29.valid", &PublishRequest{
		PostID: 1, Title: "Launch", MediaURL: srv.URL + "/media/video.mp4", MediaKind: models.MediaKindVideo,
	})

	require.NoError(t, err)
	assert.Equal(t, "vid123", id)
}

func TestYoutubePublishUnauthorized(t *testing.T) {
	mux := youtubeMux(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{
			"code":    401,
			"message": "Request had invalid authentication credentials.",
			"errors":  []map[string]any{{"reason": "authError", "message": "Invalid Credentials"}},
		}})
	})
	srv, cfg := platformServer(t, mux)

	_, err := NewYoutubeService(cfg, srv.Client()).Publish(context.Background(), "ya29.revoked", &PublishRequest{
		MediaURL: srv.URL + "/media/video.mp4", MediaKind: models.MediaKindVideo,
	})

	var pe *PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.Equal(t, "Request had invalid authentication credentials.", pe.Message)
	assert.False(t, Retryable(err))
}

func TestYoutubePublishRejectsImages(t *testing.T) {
	_, err := NewYoutubeService(testConfig(), http.DefaultClient).Publish(context.Background(), "ya29", &PublishRequest{
		MediaKind: models.MediaKindImage,
	})

	var pe *PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "youtube only accepts video media", pe.Message)
}

func TestYoutubePublishMediaDownloadFailure(t *testing.T) {
	srv, cfg := platformServer(t, http.NewServeMux())

	_, err := NewYoutubeService(cfg, srv.Client()).Publish(context.Background(), "ya29", &PublishRequest{
		MediaURL: srv.URL + "/media/missing.mp4", MediaKind: models.MediaKindVideo,
	})

	var me *MediaError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, http.StatusNotFound, me.StatusCode)
	assert.Equal(t, "media download failed: 404 Not Found", ErrorDetail(err))
	assert.False(t, Retryable(err))

	var pe *PublishError
	assert.False(t, errors.As(err, &pe))
}

func TestYoutubePublishMediaServerErrorIsRetryable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/media/video.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv, cfg := platformServer(t, mux)

	_, err := NewYoutubeService(cfg, srv.Client()).Publish(context.Background(), "ya29", &PublishRequest{
		MediaURL: srv.URL + "/media/video.mp4", MediaKind: models.MediaKindVideo,
	})

	require.Error(t, err)
	assert.True(t, Retryable(err))
}

func TestYoutubeRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "1//refresh", r.PostForm.Get("refresh_token"))
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "ya29.new", "token_type": "Bearer", "expires_in": 3599,
		})
	})
	srv, cfg := platformServer(t, mux)

	grant, err := NewYoutubeService(cfg, srv.Client()).Refresh(context.Background(), Credentials{RefreshToken: "1//refresh"})

	require.NoError(t, err)
	assert.Equal(t, "ya29.new", grant.AccessToken)
	assert.NotNil(t, grant.ExpiresAt)
}

func TestYoutubeRefreshInvalidGrantIsRevoked(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid_grant", "error_description": "Token has been expired or revoked.",
		})
	})
	srv, cfg := platformServer(t, mux)

	_, err := NewYoutubeService(cfg, srv.Client()).Refresh(context.Background(), Credentials{RefreshToken: "1//refresh"})

	var tre *TokenRefreshError
	require.ErrorAs(t, err, &tre)
	assert.True(t, tre.Revoked)
	assert.Equal(t, "Token has been expired or revoked.", tre.Message)
}

func TestYoutubeRefreshInvalidClientIsNotRevoked(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": "invalid_client", "error_description": "The OAuth client was not found.",
		})
	})
	srv, cfg := platformServer(t, mux)

	_, err := NewYoutubeService(cfg, srv.Client()).Refresh(context.Background(), Credentials{RefreshToken: "1//refresh"})

	var tre *TokenRefreshError
	require.ErrorAs(t, err, &tre)
	assert.False(t, tre.Revoked)
	assert.False(t, tre.Transient)
	assert.Equal(t, http.StatusUnauthorized, tre.StatusCode)
	assert.Equal(t, "The OAuth client was not found.", tre.Message)
}

func TestYoutubeRefreshWithoutRefreshToken(t *testing.T) {
	_, err := NewYoutubeService(testConfig(), http.DefaultClient).Refresh(context.Background(), Credentials{})

	var tre *TokenRefreshError
	require.ErrorAs(t, err, &tre)
	assert.True(t, tre.Revoked)
}
