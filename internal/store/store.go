// Package store keeps render job records. The queue is the only writer.
package store

import (
	"context"
	"errors"

	"github.com/cinevideo/api/internal/model"
)

var ErrNotFound = errors.New("job not found")

// JobStore persists render jobs by id. Implementations must be safe for
// concurrent use and must return ErrNotFound for unknown ids.
type JobStore interface {
	Save(ctx context.Context, job *model.RenderJob) error
	Get(ctx context.Context, id string) (*model.RenderJob, error)
	Delete(ctx context.Context, id string) error
}
