package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func postWith(states map[Platform]Status) *ScheduledPost {
	p := &ScheduledPost{Status: StatusInProgress}
	for platform, status := range states {
		s := p.State(platform)
		s.Target = true
		s.Status = status
	}
	return p
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name   string
		states map[Platform]Status
		want   Status
	}{
		{"all published", map[Platform]Status{PlatformYouTube: StatusPublished, PlatformTikTok: StatusPublished}, StatusPublished},
		{"all failed", map[Platform]Status{PlatformYouTube: StatusFailed}, StatusFailed},
		{"mixed", map[Platform]Status{PlatformYouTube: StatusFailed, PlatformInstagram: StatusPublished}, StatusPartialFailure},
		{"one still scheduled", map[Platform]Status{PlatformYouTube: StatusPublished, PlatformFacebook: StatusScheduled}, StatusInProgress},
		{"no targets", nil, StatusInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(postWith(tt.states), StatusInProgress))
		})
	}
}

func TestDeriveStatusIgnoresUntargetedPlatforms(t *testing.T) {
	p := postWith(map[Platform]Status{PlatformYouTube: StatusPublished})
	p.TikTok.Status = StatusFailed

	assert.Equal(t, StatusPublished, DeriveStatus(p, StatusInProgress))
}

func TestPendingTargets(t *testing.T) {
	p := postWith(map[Platform]Status{
		PlatformYouTube:   StatusPublished,
		PlatformInstagram: StatusScheduled,
		PlatformTikTok:    StatusScheduled,
	})

	assert.Equal(t, []Platform{PlatformYouTube, PlatformInstagram, PlatformTikTok}, p.Targets())
	assert.Equal(t, []Platform{PlatformInstagram, PlatformTikTok}, p.PendingTargets())
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusPublished))
	assert.True(t, IsTerminal(StatusFailed))
	assert.True(t, IsTerminal(StatusPartialFailure))
	assert.False(t, IsTerminal(StatusScheduled))
	assert.False(t, IsTerminal(StatusInProgress))
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform("tiktok")
	assert.NoError(t, err)
	assert.Equal(t, PlatformTikTok, p)

	_, err = ParsePlatform("myspace")
	assert.Error(t, err)
}

func TestPlatformColumns(t *testing.T) {
	assert.Equal(t, "youtube_video_id", PlatformYouTube.ExternalIDColumn())
	assert.Equal(t, "target_instagram", PlatformInstagram.TargetColumn())
	assert.Equal(t, "facebook_status", PlatformFacebook.StatusColumn())
}
