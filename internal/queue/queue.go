package queue

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer puts tasks on the asynq queue.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueuePost asks for a post to be dispatched once its time has come. The
// periodic run picks the post up as well, so a lost task only delays it.
func EnqueuePost(client Enqueuer, payload DispatchPostPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if delay < 0 {
		delay = 0
	}
	task := asynq.NewTask(TaskTypeDispatchPost, taskPayload, asynq.MaxRetry(0))

	if _, err := client.Enqueue(task, asynq.ProcessIn(delay)); err != nil {
		return err
	}

	slog.Info("post dispatch queued", "post_id", payload.PostID, "delay", delay)
	return nil
}

// RegisterSchedule adds the periodic dispatch run to an asynq scheduler.
func RegisterSchedule(scheduler *asynq.Scheduler, spec string) (string, error) {
	task := asynq.NewTask(TaskTypeDispatchRun, nil, asynq.MaxRetry(0), asynq.Unique(time.Minute))
	return scheduler.Register(spec, task)
}
