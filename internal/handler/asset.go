package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/logger"
	"github.com/cinevideo/api/internal/service"
	"github.com/cinevideo/api/pkg/response"
)

const maxAssetSize = 50 * 1024 * 1024 // 50MB

type AssetHandler struct {
	service *service.AssetService
	log     zerolog.Logger
}

func NewAssetHandler(svc *service.AssetService, log zerolog.Logger) *AssetHandler {
	return &AssetHandler{
		service: svc,
		log:     logger.With(log, "asset-handler"),
	}
}

// Upload handles POST /assets
func (h *AssetHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxAssetSize {
		return response.ValidationError(c, "File size exceeds 50MB limit", map[string]interface{}{
			"maxSize":  maxAssetSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	if !service.Supported(contentType) {
		return response.ValidationError(c, "Invalid file type. Supported: JPEG, PNG, WEBP, GIF, MP3, WAV, M4A, AAC", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.Save(c.UserContext(), contentType, f)
	if err != nil {
		h.log.Error().Err(err).Str("filename", file.Filename).Msg("failed to store asset")
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// Delete handles DELETE /assets/:filename
func (h *AssetHandler) Delete(c *fiber.Ctx) error {
	err := h.service.Delete(c.UserContext(), c.Params("filename"))
	switch {
	case err == nil:
		return response.NoContent(c)
	case errors.Is(err, service.ErrInvalidAssetName):
		return response.ValidationError(c, "Invalid asset name", nil)
	case errors.Is(err, service.ErrAssetNotFound):
		return response.NotFound(c, "Asset not found")
	default:
		return response.ServiceError(c, err.Error())
	}
}
