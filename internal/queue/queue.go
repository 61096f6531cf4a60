package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/postpilot-app/postpilot/internal/dispatcher"
)

// TaskTypeDispatchKick asks for one dispatch engine invocation at (or after)
// a post's scheduled time, so due posts are picked up promptly between
// periodic cron ticks. The kick carries no authority: the engine re-derives
// the due set and the atomic claim makes redundant kicks harmless.
const TaskTypeDispatchKick = "dispatch:kick"

type DispatchKickPayload struct {
	PostID string `json:"post_id"`
}

type Queue struct {
	d *dispatcher.Dispatcher
}

func NewQueue(d *dispatcher.Dispatcher) *Queue {
	return &Queue{d: d}
}

func EnqueueDispatchKick(asynqClient *asynq.Client, payload DispatchKickPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeDispatchKick, taskPayload)

	_, err = asynqClient.Enqueue(task, asynq.ProcessIn(delay))
	if err != nil {
		return err
	}

	log.Printf("Dispatch kick scheduled: %+v", payload)
	return nil
}

func (q *Queue) HandleDispatchKickTask(ctx context.Context, task *asynq.Task) error {
	var payload DispatchKickPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return q.d.RunOnce(ctx)
}
