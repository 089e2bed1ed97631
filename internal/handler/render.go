package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/logger"
	"github.com/cinevideo/api/internal/model"
	"github.com/cinevideo/api/internal/queue"
	"github.com/cinevideo/api/internal/service"
	"github.com/cinevideo/api/pkg/response"
)

type RenderHandler struct {
	service *service.RenderService
	log     zerolog.Logger
}

func NewRenderHandler(svc *service.RenderService, log zerolog.Logger) *RenderHandler {
	return &RenderHandler{
		service: svc,
		log:     logger.With(log, "render-handler"),
	}
}

// Start handles POST /render
func (h *RenderHandler) Start(c *fiber.Ctx) error {
	var req model.Composition
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.StartRender(c.UserContext(), &req)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return response.ValidationError(c, "Invalid composition", verr.Fields)
		}
		h.log.Error().Err(err).Msg("failed to start render")
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Status handles GET /status/:jobId
func (h *RenderHandler) Status(c *fiber.Ctx) error {
	job, err := h.service.GetStatus(c.UserContext(), c.Params("jobId"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// Cancel handles POST /cancel/:jobId
func (h *RenderHandler) Cancel(c *fiber.Ctx) error {
	result, err := h.service.CancelRender(c.UserContext(), c.Params("jobId"))
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrJobNotFound):
			return response.NotFound(c, "Job not found")
		case errors.Is(err, queue.ErrJobTerminal):
			return response.Conflict(c, "Job already finished")
		default:
			h.log.Error().Err(err).Msg("failed to cancel render")
			return response.ServiceError(c, err.Error())
		}
	}

	return response.OK(c, result)
}

// Files handles GET /files
func (h *RenderHandler) Files(c *fiber.Ctx) error {
	result, err := h.service.ListRenders()
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}
