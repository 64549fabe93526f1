package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/internal/service"
)

const (
	refreshWindow    = 30 * time.Minute
	concurrencyLimit = 10
)

// TokenRefreshJob renews tokens that are about to expire, ahead of the
// posts that will need them.
type TokenRefreshJob struct {
	cr     repository.ConnectionRepository
	tokens service.TokenService
	now    func() time.Time
}

func NewTokenRefreshJob(cr repository.ConnectionRepository, tokens service.TokenService) *TokenRefreshJob {
	return &TokenRefreshJob{
		cr:     cr,
		tokens: tokens,
		now:    time.Now,
	}
}

// RefreshTokens returns the number of connections refreshed.
func (c *TokenRefreshJob) RefreshTokens(ctx context.Context) int {
	connections, err := c.cr.ListExpiring(ctx, c.now().Add(refreshWindow))
	if err != nil {
		slog.Info(err.Error())
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		refreshed int
	)
	semaphore := make(chan struct{}, concurrencyLimit)

loop:
	for _, conn := range connections {
		if ctx.Err() != nil {
			break
		}
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			break loop
		}
		wg.Add(1)

		go func(conn *models.Connection) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if _, err := c.tokens.Refresh(ctx, conn); err != nil {
				slog.Info("unable to refresh token", "connection_id", conn.ID, "platform", conn.Platform, "error", err)
				return
			}
			mu.Lock()
			refreshed++
			mu.Unlock()
		}(conn)
	}
	wg.Wait()

	if len(connections) > 0 {
		slog.Info("token refresh job finished", "expiring", len(connections), "refreshed", refreshed)
	}
	return refreshed
}
