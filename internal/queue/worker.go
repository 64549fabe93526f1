package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postdispatch/internal/service"
)

func (q *Queue) HandleDispatchRunTask(ctx context.Context, task *asynq.Task) error {
	summary, err := q.runner.Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("scheduled dispatch run", "summary", summary.String())
	return nil
}

func (q *Queue) HandleDispatchPostTask(ctx context.Context, task *asynq.Task) error {
	var payload DispatchPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskTypeDispatchPost, err, asynq.SkipRetry)
	}

	if _, err := q.runner.RunPost(ctx, payload.PostID); err != nil {
		if errors.Is(err, service.ErrUnknownPost) {
			slog.Info("queued post no longer exists", "post_id", payload.PostID)
			return nil
		}
		return err
	}
	return nil
}

// Mux routes the dispatch task types to their handlers.
func (q *Queue) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDispatchRun, q.HandleDispatchRunTask)
	mux.HandleFunc(TaskTypeDispatchPost, q.HandleDispatchPostTask)
	return mux
}
