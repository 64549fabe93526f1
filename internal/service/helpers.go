package service

import (
	"time"
)

// GetExpiresAt turns a relative expires_in into an absolute time. A
// non-positive value means the platform gave no expiry.
func GetExpiresAt(expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := time.Now().UTC().Add(time.Duration(expiresIn) * time.Second)
	return &t
}
