package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/logger"
	"github.com/cinevideo/api/internal/queue"
)

// processor is the part of *asynq.Server the worker loop drives.
type processor interface {
	Start(handler asynq.Handler) error
	Shutdown()
}

// Server consumes render tasks with a single asynq worker. When a lease is
// set the worker only runs while this process holds it, so at most one
// render runs across every process sharing Redis.
type Server struct {
	newProc func() processor
	mux     *asynq.ServeMux
	lease   *Lease
	log     zerolog.Logger
}

func NewServer(opt asynq.RedisConnOpt, queueName, logLevel string, rw *RenderWorker, lease *Lease, log zerolog.Logger) *Server {
	asynqLogLevel := asynq.InfoLevel
	switch strings.ToLower(logLevel) {
	case "debug":
		asynqLogLevel = asynq.DebugLevel
	case "warn":
		asynqLogLevel = asynq.WarnLevel
	case "error":
		asynqLogLevel = asynq.ErrorLevel
	}

	// a shut down asynq server cannot be started again
	newProc := func() processor {
		return asynq.NewServer(opt, asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				queueName: 1,
			},
			Logger:   logger.NewAsynqLogger(log),
			LogLevel: asynqLogLevel,
		})
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeRender, rw.ProcessTask)

	return newServer(newProc, mux, lease, log)
}

func newServer(newProc func() processor, mux *asynq.ServeMux, lease *Lease, log zerolog.Logger) *Server {
	return &Server{
		newProc: newProc,
		mux:     mux,
		lease:   lease,
		log:     logger.With(log, "worker"),
	}
}

// Run processes tasks until ctx is done. With a lease it waits for the
// lease first and stops consuming whenever the lease is lost.
func (s *Server) Run(ctx context.Context) error {
	for {
		if s.lease != nil {
			if err := s.lease.Acquire(ctx); err != nil {
				return nil
			}
			s.log.Info().Str("lease", s.lease.Key()).Msg("worker lease acquired")
		}

		err := s.serve(ctx)
		if s.lease != nil {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if rerr := s.lease.Release(releaseCtx); rerr != nil {
				s.log.Warn().Err(rerr).Msg("failed to release worker lease")
			}
			cancel()
		}

		switch {
		case errors.Is(err, ErrLeaseLost):
			s.log.Warn().Msg("worker lease lost, render worker paused")
		case err != nil:
			return err
		case ctx.Err() != nil:
			return nil
		}
	}
}

func (s *Server) serve(ctx context.Context) error {
	p := s.newProc()
	if err := p.Start(s.mux); err != nil {
		return err
	}
	defer p.Shutdown()

	if s.lease == nil {
		<-ctx.Done()
		return nil
	}
	return s.lease.Hold(ctx)
}
