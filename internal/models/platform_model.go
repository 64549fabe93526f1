package models

import "fmt"

type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTikTok    Platform = "tiktok"
)

// AllPlatforms is the closed set of publish targets, in dispatch order.
var AllPlatforms = []Platform{
	PlatformYouTube,
	PlatformInstagram,
	PlatformFacebook,
	PlatformTikTok,
}

func ParsePlatform(s string) (Platform, error) {
	for _, p := range AllPlatforms {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

func (p Platform) String() string {
	return string(p)
}

// ExternalIDColumn is the posts column holding the id the platform returned.
func (p Platform) ExternalIDColumn() string {
	switch p {
	case PlatformYouTube:
		return "youtube_video_id"
	case PlatformInstagram:
		return "instagram_media_id"
	case PlatformFacebook:
		return "facebook_post_id"
	case PlatformTikTok:
		return "tiktok_publish_id"
	}
	panic(fmt.Sprintf("models: unhandled platform %q", string(p)))
}

func (p Platform) TargetColumn() string {
	return "target_" + string(p)
}

func (p Platform) StatusColumn() string {
	return string(p) + "_status"
}
