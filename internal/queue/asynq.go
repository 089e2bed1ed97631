package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TaskTypeRender = "render:process"

const renderDeadlineYears = 10

type renderTaskPayload struct {
	JobID string `json:"jobId"`
}

func NewRenderTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(renderTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRender, data), nil
}

// ParseRenderTask extracts the job id from a render task.
func ParseRenderTask(t *asynq.Task) (string, error) {
	var p renderTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return "", fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if p.JobID == "" {
		return "", fmt.Errorf("task payload has no jobId")
	}
	return p.JobID, nil
}

// AsynqDispatcher enqueues jobs into Redis for the single leased asynq worker
// consuming the same queue.
type AsynqDispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

func NewAsynqDispatcher(opt asynq.RedisConnOpt, queue string) *AsynqDispatcher {
	if queue == "" {
		queue = "render"
	}
	return &AsynqDispatcher{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		queue:     queue,
	}
}

func (d *AsynqDispatcher) Queue() string { return d.queue }

func (d *AsynqDispatcher) Dispatch(ctx context.Context, jobID string) error {
	task, err := NewRenderTask(jobID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	// The single retry redelivers a job whose worker died so Execute can
	// fail it. Without a deadline asynq applies a 30 minute timeout.
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.TaskID(jobID),
		asynq.Queue(d.queue),
		asynq.MaxRetry(1),
		asynq.Timeout(0),
		asynq.Deadline(time.Now().AddDate(renderDeadlineYears, 0, 0)),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (d *AsynqDispatcher) Remove(_ context.Context, jobID string) (bool, error) {
	err := d.inspector.DeleteTask(d.queue, jobID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		return false, nil
	}

	// active tasks cannot be deleted
	info, ierr := d.inspector.GetTaskInfo(d.queue, jobID)
	if ierr == nil && info.State == asynq.TaskStateActive {
		return false, ErrJobDequeued
	}
	return false, fmt.Errorf("failed to delete task: %w", err)
}

func (d *AsynqDispatcher) Close() error {
	return errors.Join(d.client.Close(), d.inspector.Close())
}
