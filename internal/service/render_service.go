package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/logger"
	"github.com/cinevideo/api/internal/model"
	"github.com/cinevideo/api/internal/queue"
)

// RenderService validates incoming compositions and fronts the job queue
type RenderService struct {
	queue    *queue.Queue
	validate *validator.Validate
	log      zerolog.Logger
}

func NewRenderService(q *queue.Queue, v *validator.Validate, log zerolog.Logger) *RenderService {
	return &RenderService{
		queue:    q,
		validate: v,
		log:      logger.With(log, "render-service"),
	}
}

// StartRender validates c and queues it. Invalid input returns a
// *model.ValidationError and creates no job.
func (s *RenderService) StartRender(ctx context.Context, c *model.Composition) (*model.RenderStartResponse, error) {
	if err := c.Validate(s.validate); err != nil {
		return nil, err
	}

	jobID, err := s.queue.CreateJob(ctx, c)
	if err != nil {
		return nil, err
	}

	return &model.RenderStartResponse{
		Status:  "success",
		JobID:   jobID,
		PollURL: "/status/" + jobID,
	}, nil
}

// GetStatus returns the current job snapshot
func (s *RenderService) GetStatus(ctx context.Context, jobID string) (*model.RenderJob, error) {
	return s.queue.GetJob(ctx, jobID)
}

// CancelRender removes a queued job or interrupts a running one
func (s *RenderService) CancelRender(ctx context.Context, jobID string) (*model.RenderCancelResponse, error) {
	res, err := s.queue.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.RenderCancelResponse{
		Success: true,
		JobID:   jobID,
		Status:  string(res),
	}, nil
}

// ListRenders lists finished artifacts on disk
func (s *RenderService) ListRenders() (*model.FilesResponse, error) {
	artifacts, err := s.queue.ListCompletedArtifacts()
	if err != nil {
		return nil, err
	}
	return &model.FilesResponse{Renders: artifacts}, nil
}
