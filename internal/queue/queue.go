// Package queue owns the render job lifecycle: it is the only writer of job
// state and runs at most one render at a time.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/engine"
	"github.com/cinevideo/api/internal/logger"
	"github.com/cinevideo/api/internal/model"
	"github.com/cinevideo/api/internal/store"
	"github.com/cinevideo/api/internal/timeline"
)

var (
	ErrJobNotFound = fmt.Errorf("render %w", store.ErrNotFound)
	ErrJobTerminal = errors.New("job already finished")
)

// CancelResult tells the caller what a cancel request did.
type CancelResult string

const (
	// CancelRemoved means the job never started and is gone.
	CancelRemoved CancelResult = "removed"
	// CancelRequested means a running render was told to stop.
	CancelRequested CancelResult = "canceled"
)

// Notifier is told about every state a job enters.
type Notifier interface {
	JobUpdated(jobID string, state model.JobState)
}

// Publisher mirrors a finished artifact somewhere and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, key, localPath string) (string, error)
}

type Config struct {
	RendersDir    string
	PublicURL     string
	CompositionID string
	Codec         string
}

type Queue struct {
	cfg        Config
	store      store.JobStore
	dispatcher Dispatcher
	renderer   engine.Renderer
	publisher  Publisher
	notifier   Notifier
	log        zerolog.Logger
	now        func() time.Time

	// mu serializes every store write with the running/canceled bookkeeping
	mu       sync.Mutex
	running  map[string]context.CancelFunc
	canceled map[string]bool
}

type Option func(*Queue)

func WithPublisher(p Publisher) Option {
	return func(q *Queue) { q.publisher = p }
}

func WithNotifier(n Notifier) Option {
	return func(q *Queue) { q.notifier = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(q *Queue) { q.log = logger.With(l, "queue") }
}

func New(cfg Config, st store.JobStore, d Dispatcher, r engine.Renderer, opts ...Option) *Queue {
	if cfg.Codec == "" {
		cfg.Codec = "h264"
	}
	q := &Queue{
		cfg:        cfg,
		store:      st,
		dispatcher: d,
		renderer:   r,
		log:        logger.Nop(),
		now:        time.Now,
		running:    make(map[string]context.CancelFunc),
		canceled:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// CreateJob records a queued job and hands it to the dispatcher. It never
// waits for rendering. The composition is expected to be validated already.
func (q *Queue) CreateJob(ctx context.Context, data *model.Composition) (string, error) {
	job := &model.RenderJob{
		ID:        uuid.New().String(),
		Data:      data,
		State:     model.Queued(),
		CreatedAt: q.now().UTC(),
	}

	q.mu.Lock()
	err := q.store.Save(ctx, job)
	if err == nil {
		q.notify(job.ID, job.State)
	}
	q.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	if err := q.dispatcher.Dispatch(ctx, job.ID); err != nil {
		q.transition(context.WithoutCancel(ctx), job.ID, model.Failed("failed to dispatch job: "+err.Error()))
		return "", fmt.Errorf("failed to dispatch job: %w", err)
	}

	q.log.Info().Str("jobId", job.ID).Int("scenes", len(data.Scenes)).Msg("render job queued")
	return job.ID, nil
}

// GetJob returns the current snapshot of a job.
func (q *Queue) GetJob(ctx context.Context, id string) (*model.RenderJob, error) {
	job, err := q.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return job, nil
}

// Cancel stops a job. Queued jobs are removed outright. Running jobs, and
// queued jobs a worker already dequeued, end in the canceled state.
func (q *Queue) Cancel(ctx context.Context, id string) (CancelResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrJobNotFound
		}
		return "", fmt.Errorf("failed to load job: %w", err)
	}
	if job.State.IsTerminal() {
		return "", ErrJobTerminal
	}

	if cancel, ok := q.running[id]; ok {
		q.canceled[id] = true
		cancel()
		q.log.Info().Str("jobId", id).Msg("render cancel requested")
		return CancelRequested, nil
	}

	if job.State.Status() == model.JobStatusInProgress {
		// Running in another process. Its next progress write sees the
		// terminal state and aborts the render.
		if _, err := q.transitionLocked(ctx, id, model.Canceled()); err != nil {
			return "", err
		}
		return CancelRequested, nil
	}

	if _, err := q.dispatcher.Remove(ctx, id); err != nil {
		if !errors.Is(err, ErrJobDequeued) {
			return "", err
		}
		// a worker holds the task but has not started the render yet
		if _, err := q.transitionLocked(ctx, id, model.Canceled()); err != nil {
			return "", err
		}
		q.log.Info().Str("jobId", id).Msg("dequeued render canceled")
		return CancelRequested, nil
	}
	if err := q.store.Delete(ctx, id); err != nil {
		return "", fmt.Errorf("failed to delete job: %w", err)
	}
	q.notify(id, model.Canceled())
	q.log.Info().Str("jobId", id).Msg("queued render removed")
	return CancelRemoved, nil
}

// Execute runs one job to a terminal state. Only dispatch consumers call it.
// Render failures end up in the job state, not in the returned error.
func (q *Queue) Execute(ctx context.Context, id string) error {
	wctx := context.WithoutCancel(ctx)
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.mu.Lock()
	job, err := q.store.Get(wctx, id)
	if err != nil {
		delete(q.canceled, id)
		q.mu.Unlock()
		if errors.Is(err, store.ErrNotFound) {
			q.log.Debug().Str("jobId", id).Msg("job removed before start")
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if job.State.Status() == model.JobStatusInProgress {
		// redelivered after the worker that started it died
		_, err := q.transitionLocked(wctx, id, model.Failed(interruptedReason))
		q.mu.Unlock()
		if err != nil && !errors.Is(err, errStaleTransition) {
			return err
		}
		q.log.Error().Str("jobId", id).Msg("render interrupted, marked failed")
		return nil
	}
	if job.State.Status() != model.JobStatusQueued {
		q.mu.Unlock()
		q.log.Warn().Str("jobId", id).Stringer("state", job.State).Msg("skipping job that is not queued")
		return nil
	}
	if _, err := q.transitionLocked(wctx, id, model.InProgress(0)); err != nil {
		q.mu.Unlock()
		return err
	}
	q.running[id] = cancel
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.running, id)
		delete(q.canceled, id)
		q.mu.Unlock()
	}()

	start := q.now()
	q.log.Info().Str("jobId", id).Str("engine", q.renderer.Name()).Msg("render started")

	final := q.render(jobCtx, wctx, job, cancel)
	if _, err := q.transition(wctx, id, final); err != nil && !errors.Is(err, errStaleTransition) {
		q.log.Error().Err(err).Str("jobId", id).Msg("failed to record final state")
	}

	ev := q.log.Info()
	if final.Status() == model.JobStatusFailed {
		ev = q.log.Error().Str("error", final.ErrorMessage())
	}
	ev.Str("jobId", id).Str("status", string(final.Status())).Dur("took", q.now().Sub(start)).Msg("render finished")
	return nil
}

func (q *Queue) render(ctx, wctx context.Context, job *model.RenderJob, abort context.CancelFunc) (state model.JobState) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Str("jobId", job.ID).Interface("panic", r).Msg("render engine panicked")
			state = model.Failed(fmt.Sprintf("render engine panicked: %v", r))
		}
	}()

	req, err := q.prepare(job)
	if err != nil {
		return model.Failed(err.Error())
	}

	err = q.renderer.Render(ctx, req, func(p float64) {
		if _, err := q.transition(wctx, job.ID, model.InProgress(p)); errors.Is(err, errStaleTransition) {
			// canceled from another process
			q.mu.Lock()
			q.canceled[job.ID] = true
			q.mu.Unlock()
			abort()
		}
	})
	if q.wasCanceled(job.ID) {
		return model.Canceled()
	}
	if err != nil {
		if ctx.Err() != nil {
			return model.Failed("render interrupted: " + err.Error())
		}
		return model.Failed(err.Error())
	}

	url := q.artifactURL(job.ID)
	if q.publisher != nil {
		remote, err := q.publisher.Publish(wctx, filepath.Base(req.OutputPath), req.OutputPath)
		switch {
		case err != nil:
			q.log.Warn().Err(err).Str("jobId", job.ID).Msg("failed to publish artifact, keeping local url")
		case remote != "":
			url = remote
		}
	}
	return model.Completed(url)
}

func (q *Queue) prepare(job *model.RenderJob) (engine.Request, error) {
	if job.Data == nil {
		return engine.Request{}, fmt.Errorf("job has no composition")
	}
	comp, err := engine.LookupComposition(job.Data.ResolveCompositionID(q.cfg.CompositionID))
	if err != nil {
		return engine.Request{}, err
	}
	tl, err := timeline.Compile(job.Data)
	if err != nil {
		return engine.Request{}, err
	}
	return engine.Request{
		JobID:         job.ID,
		CompositionID: comp.ID,
		Width:         comp.Width,
		Height:        comp.Height,
		Codec:         q.cfg.Codec,
		Props:         job.Data,
		Timeline:      tl,
		OutputPath:    q.OutputPath(job.ID),
	}, nil
}

func (q *Queue) wasCanceled(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.canceled[id]
}

var errStaleTransition = errors.New("job already in a terminal state")

const interruptedReason = "render interrupted: worker stopped before it finished"

func (q *Queue) transition(ctx context.Context, id string, next model.JobState) (*model.RenderJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.transitionLocked(ctx, id, next)
}

// transitionLocked replaces the job state wholesale. Callers hold q.mu.
func (q *Queue) transitionLocked(ctx context.Context, id string, next model.JobState) (*model.RenderJob, error) {
	job, err := q.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if !job.State.CanTransitionTo(next) {
		return job, errStaleTransition
	}

	now := q.now().UTC()
	job.State = next
	switch {
	case next.IsTerminal():
		job.CompletedAt = &now
	case next.Status() == model.JobStatusInProgress && job.StartedAt == nil:
		job.StartedAt = &now
	}

	if err := q.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	q.notify(id, next)
	return job, nil
}

func (q *Queue) notify(id string, state model.JobState) {
	if q.notifier != nil {
		q.notifier.JobUpdated(id, state)
	}
}

// Run drives the dispatcher's in-process consumer, if it has one. It returns
// when ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	r, ok := q.dispatcher.(Runner)
	if !ok {
		<-ctx.Done()
		return nil
	}
	return r.Run(ctx, func(ctx context.Context, id string) {
		if err := q.Execute(ctx, id); err != nil {
			q.log.Error().Err(err).Str("jobId", id).Msg("failed to execute job")
		}
	})
}

// OutputPath is where the artifact of job id is written.
func (q *Queue) OutputPath(id string) string {
	return filepath.Join(q.cfg.RendersDir, id+".mp4")
}

func (q *Queue) artifactURL(id string) string {
	return q.fileURL(id + ".mp4")
}

func (q *Queue) fileURL(name string) string {
	return strings.TrimRight(q.cfg.PublicURL, "/") + "/renders/" + name
}

// ListCompletedArtifacts lists the mp4 files in the renders directory.
func (q *Queue) ListCompletedArtifacts() ([]model.Artifact, error) {
	entries, err := os.ReadDir(q.cfg.RendersDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.Artifact{}, nil
		}
		return nil, fmt.Errorf("failed to read renders dir: %w", err)
	}

	artifacts := make([]model.Artifact, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".mp4") {
			continue
		}
		artifacts = append(artifacts, model.Artifact{Filename: e.Name(), URL: q.fileURL(e.Name())})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Filename < artifacts[j].Filename })
	return artifacts, nil
}
