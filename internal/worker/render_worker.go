package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/logger"
	"github.com/cinevideo/api/internal/queue"
)

// Executor runs one render job to a terminal state
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// RenderWorker processes render tasks delivered by asynq
type RenderWorker struct {
	exec Executor
	log  zerolog.Logger
}

// NewRenderWorker creates a new render worker
func NewRenderWorker(exec Executor, log zerolog.Logger) *RenderWorker {
	return &RenderWorker{exec: exec, log: logger.With(log, "render-worker")}
}

// ProcessTask handles render task processing. Render failures are recorded
// on the job and do not fail the task.
func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	jobID, err := queue.ParseRenderTask(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	w.log.Debug().Str("jobId", jobID).Msg("render task received")
	return w.exec.Execute(ctx, jobID)
}
