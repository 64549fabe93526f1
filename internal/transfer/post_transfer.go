package transfer

// PostCreation is the body of a schedule request, sent either as multipart
// form fields next to a media file or as JSON with a media_url.
type PostCreation struct {
	Title         string `json:"title" form:"title"`
	Description   string `json:"description" form:"description"`
	ScheduledTime string `json:"scheduled_time" form:"scheduled_time"`
	// Platforms is a JSON array such as ["youtube","tiktok"].
	Platforms string `json:"platforms" form:"platforms"`
	MediaURL  string `json:"media_url" form:"media_url"`
	MediaKind string `json:"media_kind" form:"media_kind"`
}

type RescheduleRequest struct {
	ScheduledTime string `json:"scheduled_time"`
}
