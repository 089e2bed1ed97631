package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrJobDequeued is returned by Remove when a consumer already took the job
// off the queue but may not have started it.
var ErrJobDequeued = errors.New("job already taken by a worker")

// Dispatcher hands queued job ids to whatever executes them. At most one job
// may execute at a time across all consumers of a dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
	// Remove drops a job that has not started yet. It reports whether the
	// job was still pending.
	Remove(ctx context.Context, jobID string) (bool, error)
}

// ExecFunc runs one job to a terminal state.
type ExecFunc func(ctx context.Context, jobID string)

// Runner is implemented by dispatchers that consume their own queue in
// process.
type Runner interface {
	Run(ctx context.Context, exec ExecFunc) error
}

// LocalDispatcher is an in-process FIFO drained by a single consumer.
type LocalDispatcher struct {
	mu      sync.Mutex
	pending []string
	wake    chan struct{}
}

func NewLocalDispatcher() *LocalDispatcher {
	return &LocalDispatcher{wake: make(chan struct{}, 1)}
}

func (d *LocalDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.mu.Lock()
	d.pending = append(d.pending, jobID)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *LocalDispatcher) Remove(_ context.Context, jobID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, id := range d.pending {
		if id == jobID {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of jobs waiting to start.
func (d *LocalDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *LocalDispatcher) next() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return "", false
	}
	id := d.pending[0]
	d.pending = d.pending[1:]
	return id, true
}

// Run executes pending jobs one after another until ctx is done. Jobs still
// pending at shutdown are left in place.
func (d *LocalDispatcher) Run(ctx context.Context, exec ExecFunc) error {
	for {
		for {
			if ctx.Err() != nil {
				return nil
			}
			id, ok := d.next()
			if !ok {
				break
			}
			exec(ctx, id)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-d.wake:
		}
	}
}
