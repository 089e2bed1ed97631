package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned by Hold when another holder owns the key or the
// lease could not be renewed before it expired.
var ErrLeaseLost = errors.New("worker lease lost")

var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Lease is a Redis key owned by at most one process at a time. The render
// worker holds it while consuming the queue, so every process sharing Redis
// together runs at most one render.
type Lease struct {
	rdb   redis.UniversalClient
	key   string
	token string
	ttl   time.Duration
}

func NewLease(rdb redis.UniversalClient, key string, ttl time.Duration) *Lease {
	return &Lease{rdb: rdb, key: key, token: uuid.New().String(), ttl: ttl}
}

func (l *Lease) Key() string { return l.key }

func (l *Lease) interval() time.Duration { return l.ttl / 3 }

// TryAcquire takes the lease if it is free.
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Acquire blocks until the lease is taken or ctx is done.
func (l *Lease) Acquire(ctx context.Context) error {
	ticker := time.NewTicker(l.interval())
	defer ticker.Stop()
	for {
		ok, err := l.TryAcquire(ctx)
		if ok {
			return nil
		}
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Hold renews the lease until ctx is done, returning nil, or until the lease
// is lost, returning ErrLeaseLost.
func (l *Lease) Hold(ctx context.Context) error {
	ticker := time.NewTicker(l.interval())
	defer ticker.Stop()
	renewed := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
		switch {
		case err == nil && n == 1:
			renewed = time.Now()
		case err == nil:
			return ErrLeaseLost
		case ctx.Err() != nil:
			return nil
		case time.Since(renewed) >= l.ttl:
			return ErrLeaseLost
		}
	}
}

// Release gives the lease up if this process still owns it.
func (l *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
