package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/maheshrc27/postdispatch/internal/metrics"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
)

// OutcomeJournal parks outcomes the database would not take.
type OutcomeJournal interface {
	Push(ctx context.Context, entry *models.JournaledOutcome) error
}

// RecorderService writes per-platform results and the audit log.
type RecorderService interface {
	// Record stores the outcome of one attempt. Recording the same attempt
	// again changes nothing.
	Record(ctx context.Context, outcome *models.PlatformOutcome, attemptNo int) error
	// Apply writes an outcome without the journal fallback.
	Apply(ctx context.Context, outcome *models.PlatformOutcome, attemptNo int) (bool, error)
	RecordRetry(ctx context.Context, postID int64, platform models.Platform, attemptID string, attemptNo int, detail string) error
}

type recorderService struct {
	tx       repository.TxRunner
	posts    repository.PostRepository
	logs     repository.PostLogRepository
	journal  OutcomeJournal
	alerts   AlertService
	attempts int
	wait     time.Duration
}

func NewRecorderService(
	tx repository.TxRunner,
	posts repository.PostRepository,
	logs repository.PostLogRepository,
	journal OutcomeJournal,
	alerts AlertService,
	attempts int) RecorderService {
	if attempts <= 0 {
		attempts = 3
	}
	return &recorderService{
		tx:       tx,
		posts:    posts,
		logs:     logs,
		journal:  journal,
		alerts:   alerts,
		attempts: attempts,
		wait:     200 * time.Millisecond,
	}
}

func (s *recorderService) Apply(ctx context.Context, outcome *models.PlatformOutcome, attemptNo int) (bool, error) {
	var applied bool
	err := s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		applied, err = s.posts.ApplyOutcome(ctx, tx, outcome)
		if err != nil {
			return err
		}
		_, err = s.logs.Create(ctx, tx, &models.PostLog{
			PostID:    outcome.PostID,
			Platform:  outcome.Platform,
			Outcome:   outcome.LogOutcome(),
			Detail:    outcomeDetail(outcome),
			AttemptID: outcome.AttemptID,
			AttemptNo: attemptNo,
		})
		return err
	})
	return applied, err
}

func (s *recorderService) Record(ctx context.Context, outcome *models.PlatformOutcome, attemptNo int) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.wait

	_, err := backoff.Retry(ctx, func() (bool, error) {
		return s.Apply(ctx, outcome, attemptNo)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.attempts)),
	)
	if err == nil {
		return nil
	}

	s.fallback(ctx, outcome, attemptNo, err)
	return fmt.Errorf("record %s outcome for post %d: %w", outcome.Platform, outcome.PostID, err)
}

// fallback runs when the database refused an outcome. A publication the
// platform already accepted must not be lost, so it is journaled for the
// reconciler and an operator is told.
func (s *recorderService) fallback(ctx context.Context, outcome *models.PlatformOutcome, attemptNo int, cause error) {
	slog.Error("publish outcome could not be recorded",
		"post_id", outcome.PostID,
		"platform", outcome.Platform,
		"published", outcome.Published,
		"external_id", outcome.ExternalID,
		"attempt_id", outcome.AttemptID,
		"error", cause,
	)

	if err := s.journal.Push(ctx, &models.JournaledOutcome{
		Outcome:     *outcome,
		AttemptNo:   attemptNo,
		JournaledAt: time.Now().UTC(),
		Reason:      cause.Error(),
	}); err != nil {
		slog.Error("failed to journal outcome", "post_id", outcome.PostID, "platform", outcome.Platform, "error", err)
	}

	if !outcome.Published {
		return
	}

	metrics.IncUnrecordedPublication(outcome.Platform.String())
	subject := fmt.Sprintf("[postdispatch] unrecorded %s publication for post %d", outcome.Platform, outcome.PostID)
	body := fmt.Sprintf(
		"Post %d was published to %s as %q but the result could not be stored.\n"+
			"The outcome was journaled for reconciliation.\n\nattempt: %s\nerror: %v\n",
		outcome.PostID, outcome.Platform, outcome.ExternalID, outcome.AttemptID, cause,
	)
	if err := s.alerts.Notify(ctx, subject, body); err != nil {
		slog.Error("failed to send operator alert", "post_id", outcome.PostID, "error", err)
	}
}

func (s *recorderService) RecordRetry(ctx context.Context, postID int64, platform models.Platform, attemptID string, attemptNo int, detail string) error {
	_, err := s.logs.Create(ctx, nil, &models.PostLog{
		PostID:    postID,
		Platform:  platform,
		Outcome:   models.LogOutcomeRetry,
		Detail:    detail,
		AttemptID: attemptID,
		AttemptNo: attemptNo,
	})
	return err
}

func outcomeDetail(o *models.PlatformOutcome) string {
	if o.Published && o.Detail == "" {
		return "published as " + o.ExternalID
	}
	return o.Detail
}
