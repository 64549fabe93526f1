package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// openMedia streams the post's media from its public URL. Failures are
// MediaErrors so a storage 401 is never read as a rejected platform token.
func openMedia(ctx context.Context, client *http.Client, mediaURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, &MediaError{URL: mediaURL, Message: fmt.Sprintf("invalid media url: %v", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &MediaError{URL: mediaURL, Message: fmt.Sprintf("media download failed: %v", err), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &MediaError{
			URL:        mediaURL,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("media download failed: %s", resp.Status),
		}
	}
	return resp.Body, nil
}
