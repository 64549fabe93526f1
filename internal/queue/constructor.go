package queue

import (
	"context"
)

const (
	TaskTypeDispatchRun  = "dispatch:run"
	TaskTypeDispatchPost = "dispatch:post"
)

type DispatchPostPayload struct {
	PostID int64 `json:"post_id"`
}

// Runner is the dispatch capability the asynq handlers need.
type Runner interface {
	Run(ctx context.Context) (*Summary, error)
	RunPost(ctx context.Context, postID int64) (*Summary, error)
}

type Queue struct {
	runner Runner
}

func NewQueue(runner Runner) *Queue {
	return &Queue{runner: runner}
}
