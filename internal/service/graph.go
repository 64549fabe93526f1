package service

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/transfer"
)

const (
	graphVersion = "v21.0"

	// graphTokenInvalid is the Graph API code for an expired or revoked token.
	graphTokenInvalid = 190

	// oauthInvalidGrant is the OAuth error for a refresh token the user revoked
	// or that expired. Other token endpoint errors point at our client setup.
	oauthInvalidGrant = "invalid_grant"
)

func newGraphClient(client *http.Client, baseURL string) *resty.Client {
	return resty.NewWithClient(client).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
}

func graphMessage(resp *resty.Response, e *transfer.GraphErrorResponse) string {
	if e != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if body := string(resp.Body()); body != "" {
		return body
	}
	return resp.Status()
}

func graphPublishError(platform models.Platform, resp *resty.Response, e *transfer.GraphErrorResponse) *PublishError {
	return &PublishError{
		Platform:   platform,
		StatusCode: resp.StatusCode(),
		Message:    graphMessage(resp, e),
	}
}

func graphRefreshError(platform models.Platform, resp *resty.Response, e *transfer.GraphErrorResponse) *TokenRefreshError {
	status := resp.StatusCode()
	revoked := e.Error.Code == graphTokenInvalid
	return &TokenRefreshError{
		Platform:   platform,
		StatusCode: status,
		Message:    graphMessage(resp, e),
		Revoked:    revoked,
		Transient:  !revoked && (retryableStatus(status) || e.Error.IsTransient),
	}
}

func transportPublishError(platform models.Platform, err error) *PublishError {
	return &PublishError{Platform: platform, Message: err.Error(), Err: err}
}

func transportRefreshError(platform models.Platform, err error) *TokenRefreshError {
	return &TokenRefreshError{Platform: platform, Message: err.Error(), Transient: true, Err: err}
}

// captionOf is the text used by platforms that have no separate title.
func captionOf(req *PublishRequest) string {
	if req.Description != "" {
		return req.Description
	}
	return req.Title
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
