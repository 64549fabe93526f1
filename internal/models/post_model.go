package models

import (
	"fmt"
	"time"
)

type Status string

// Stored values keep the vocabulary the posts table has always used.
const (
	StatusScheduled      Status = "agendado"
	StatusInProgress     Status = "processando"
	StatusPublished      Status = "publicado"
	StatusFailed         Status = "falhou"
	StatusPartialFailure Status = "falha_parcial"
)

type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindImage MediaKind = "image"
)

type PlatformState struct {
	Target     bool   `json:"target"`
	Status     Status `json:"status"`
	ExternalID string `json:"external_id,omitempty"`
}

type ScheduledPost struct {
	ID           int64      `db:"id" json:"id"`
	WorkspaceID  int64      `db:"workspace_id" json:"workspace_id"`
	Title        string     `db:"title" json:"title"`
	Description  string     `db:"description" json:"description"`
	MediaURL     string     `db:"media_url" json:"media_url"`
	MediaKind    MediaKind  `db:"media_kind" json:"media_kind"`
	ScheduledAt  time.Time  `db:"scheduled_at" json:"scheduled_at"`
	Status       Status     `db:"status" json:"status"`
	PostError    string     `db:"post_error" json:"post_error,omitempty"`
	ClaimToken   string     `db:"claim_token" json:"-"`
	ClaimedUntil *time.Time `db:"claimed_until" json:"-"`

	YouTube   PlatformState `json:"youtube"`
	Instagram PlatformState `json:"instagram"`
	Facebook  PlatformState `json:"facebook"`
	TikTok    PlatformState `json:"tiktok"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (p *ScheduledPost) State(platform Platform) *PlatformState {
	switch platform {
	case PlatformYouTube:
		return &p.YouTube
	case PlatformInstagram:
		return &p.Instagram
	case PlatformFacebook:
		return &p.Facebook
	case PlatformTikTok:
		return &p.TikTok
	}
	panic(fmt.Sprintf("models: unhandled platform %q", string(platform)))
}

// Targets lists the platforms the post was scheduled for.
func (p *ScheduledPost) Targets() []Platform {
	var targets []Platform
	for _, platform := range AllPlatforms {
		if p.State(platform).Target {
			targets = append(targets, platform)
		}
	}
	return targets
}

// PendingTargets lists targeted platforms that have not been attempted yet.
func (p *ScheduledPost) PendingTargets() []Platform {
	var pending []Platform
	for _, platform := range p.Targets() {
		if p.State(platform).Status == StatusScheduled {
			pending = append(pending, platform)
		}
	}
	return pending
}

// DeriveStatus computes the overall status from the targeted platforms.
// A post with any target still scheduled keeps fallback.
func DeriveStatus(p *ScheduledPost, fallback Status) Status {
	var published, failed, total int
	for _, platform := range p.Targets() {
		total++
		switch p.State(platform).Status {
		case StatusPublished:
			published++
		case StatusFailed:
			failed++
		}
	}

	switch {
	case total == 0:
		return fallback
	case published == total:
		return StatusPublished
	case failed == total:
		return StatusFailed
	case published+failed == total:
		return StatusPartialFailure
	default:
		return fallback
	}
}

func IsTerminal(s Status) bool {
	return s == StatusPublished || s == StatusFailed || s == StatusPartialFailure
}
