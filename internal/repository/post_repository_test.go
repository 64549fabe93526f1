package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postdispatch/internal/models"
)

func TestDueQuery(t *testing.T) {
	r := NewPostRepository(nil).(*postRepository)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	query, args, err := r.dueQuery(now, 25).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "FROM posts")
	assert.Contains(t, query, "(status = $1 AND scheduled_at <= $2)")
	assert.Contains(t, query, "(status = $3 AND claimed_until < $4)")
	assert.Contains(t, query, "ORDER BY scheduled_at ASC, id ASC")
	assert.Contains(t, query, "LIMIT 25")
	assert.Equal(t, []any{"agendado", now, "processando", now}, args)
}

func TestPostColumnsCoverEveryPlatform(t *testing.T) {
	cols := postColumns()
	for _, p := range models.AllPlatforms {
		assert.Contains(t, cols, p.TargetColumn())
		assert.Contains(t, cols, p.StatusColumn())
		assert.Contains(t, cols, p.ExternalIDColumn())
	}
	assert.Equal(t, "youtube_video_id", models.PlatformYouTube.ExternalIDColumn())
}

func TestOutcomeUpdate(t *testing.T) {
	r := NewPostRepository(nil).(*postRepository)

	published := &models.PlatformOutcome{PostID: 7, Platform: models.PlatformYouTube, Published: true, ExternalID: "vid123"}
	query, args, err := r.outcomeUpdate(published).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "youtube_status = $1")
	assert.Contains(t, query, "youtube_video_id = $2")
	assert.Contains(t, query, "WHERE id = $3 AND youtube_status = $4")
	assert.Equal(t, []any{"publicado", "vid123", int64(7), "agendado"}, args)

	failed := &models.PlatformOutcome{PostID: 7, Platform: models.PlatformTikTok, Detail: "access_token_invalid"}
	query, args, err = r.outcomeUpdate(failed).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "tiktok_status = $1")
	assert.Contains(t, query, "post_error = CASE WHEN post_error = '' THEN $2 ELSE post_error || chr(10) || $3 END")
	assert.NotContains(t, query, "tiktok_publish_id")
	assert.Equal(t, "tiktok: access_token_invalid", args[1])
}

func TestRescheduleUpdateSkipsPublishedAndClaimedPosts(t *testing.T) {
	r := NewPostRepository(nil).(*postRepository)
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	query, args, err := r.rescheduleUpdate(7, at).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "status IN (")
	assert.NotContains(t, query, "status <>")
	assert.Contains(t, args, "falhou")
	assert.Contains(t, args, "falha_parcial")
	assert.NotContains(t, args, "publicado")
	assert.NotContains(t, args, "processando")
	assert.Contains(t, query, "CASE WHEN youtube_status = ")
}
