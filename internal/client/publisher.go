package client

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Publisher mirrors a finished artifact to remote storage.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, key, localPath string) (string, error)
}

// Publishers uploads to every configured publisher concurrently. The URL of
// the first publisher is the one reported back.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, key, localPath string) (string, error) {
	if len(ps) == 0 {
		return "", nil
	}

	urls := make([]string, len(ps))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range ps {
		i, p := i, p
		g.Go(func() error {
			url, err := p.Publish(ctx, key, localPath)
			if err != nil {
				return fmt.Errorf("%s: %w", p.Name(), err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return urls[0], nil
}
