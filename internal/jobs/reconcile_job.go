package job

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/internal/service"
)

// Journal is the source of outcomes that could not be stored at dispatch
// time.
type Journal interface {
	Push(ctx context.Context, entry *models.JournaledOutcome) error
	Pop(ctx context.Context) (*models.JournaledOutcome, error)
}

// ReconcileJob writes journaled outcomes back to Postgres and finalizes the
// posts they were holding.
type ReconcileJob struct {
	journal  Journal
	recorder service.RecorderService
	posts    repository.PostRepository
	limit    int
}

func NewReconcileJob(journal Journal, recorder service.RecorderService, posts repository.PostRepository) *ReconcileJob {
	return &ReconcileJob{
		journal:  journal,
		recorder: recorder,
		posts:    posts,
		limit:    500,
	}
}

// Drain applies journaled outcomes until the journal is empty or the
// database refuses one again. It returns the number applied.
func (j *ReconcileJob) Drain(ctx context.Context) int {
	applied := 0
	for i := 0; i < j.limit; i++ {
		entry, err := j.journal.Pop(ctx)
		if err != nil {
			slog.Error("failed to read outcome journal", "error", err)
			return applied
		}
		if entry == nil {
			break
		}

		outcome := &entry.Outcome
		if _, err := j.recorder.Apply(ctx, outcome, entry.AttemptNo); err != nil {
			slog.Error("journaled outcome still cannot be recorded",
				"post_id", outcome.PostID,
				"platform", outcome.Platform,
				"error", err,
			)
			if perr := j.journal.Push(ctx, entry); perr != nil {
				slog.Error("failed to return outcome to journal",
					"post_id", outcome.PostID,
					"platform", outcome.Platform,
					"external_id", outcome.ExternalID,
					"error", perr,
				)
			}
			return applied
		}
		applied++

		j.finalize(ctx, outcome.PostID)
	}

	if applied > 0 {
		slog.Info("reconciled journaled outcomes", "applied", applied)
	}
	return applied
}

func (j *ReconcileJob) finalize(ctx context.Context, postID int64) {
	post, err := j.posts.GetByID(ctx, postID)
	if err != nil || post == nil {
		return
	}
	if post.Status != models.StatusInProgress || post.ClaimToken == "" {
		return
	}

	status := models.DeriveStatus(post, models.StatusInProgress)
	if !models.IsTerminal(status) {
		return
	}
	if err := j.posts.Finalize(ctx, post.ID, post.ClaimToken, status); err != nil {
		slog.Error("failed to finalize reconciled post", "post_id", post.ID, "error", err)
		return
	}
	slog.Info("reconciled post finalized", "post_id", post.ID, "status", status)
}
