package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/maheshrc27/postdispatch/internal/models"
)

var (
	ErrNotConnected = errors.New("no connected account for platform")
	ErrUnknownPost  = errors.New("post not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrPostBusy     = errors.New("post cannot be changed in its current status")
)

const emptyIDMessage = "platform returned an empty id"

// TokenRefreshError is returned when a connection's access token could not
// be renewed. Revoked means the user has to reconnect.
type TokenRefreshError struct {
	Platform   models.Platform
	StatusCode int
	Message    string
	Revoked    bool
	Transient  bool
	Err        error
}

func (e *TokenRefreshError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s token refresh failed (%d): %s", e.Platform, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s token refresh failed: %s", e.Platform, e.Message)
}

func (e *TokenRefreshError) Unwrap() error {
	return e.Err
}

// PublishError carries the platform's own error text verbatim.
type PublishError struct {
	Platform   models.Platform
	StatusCode int
	Message    string
	Err        error
}

func (e *PublishError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s publish failed (%d): %s", e.Platform, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s publish failed: %s", e.Platform, e.Message)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// MediaError is a failure to fetch the post's media from storage. It says
// nothing about the platform credential.
type MediaError struct {
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *MediaError) Error() string {
	return e.Message
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err is worth another attempt: 5xx, 408, 429,
// network failures and per-call timeouts. Other 4xx fail fast.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var tre *TokenRefreshError
	if errors.As(err, &tre) {
		return tre.Transient && !tre.Revoked
	}

	var me *MediaError
	if errors.As(err, &me) {
		if me.StatusCode > 0 {
			return retryableStatus(me.StatusCode)
		}
		return me.Err != nil && transportFailure(me.Err)
	}

	var pe *PublishError
	if errors.As(err, &pe) {
		if pe.StatusCode > 0 {
			return retryableStatus(pe.StatusCode)
		}
		return pe.Err != nil && transportFailure(pe.Err)
	}

	return transportFailure(err)
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func transportFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ErrorDetail is the text stored against a failed platform: the platform's
// message when there is one.
func ErrorDetail(err error) string {
	var me *MediaError
	if errors.As(err, &me) {
		return me.Message
	}
	var pe *PublishError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	var tre *TokenRefreshError
	if errors.As(err, &tre) && tre.Message != "" {
		if tre.Revoked {
			return "reauthorization required: " + tre.Message
		}
		return tre.Message
	}
	return err.Error()
}
