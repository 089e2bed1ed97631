// Package server assembles the Fiber application.
package server

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/handler"
	"github.com/cinevideo/api/internal/middleware"
	ws "github.com/cinevideo/api/internal/websocket"
	"github.com/cinevideo/api/pkg/response"
)

type Options struct {
	Render *handler.RenderHandler
	Health *handler.HealthHandler
	// Assets is optional; without it uploads are disabled
	Assets *handler.AssetHandler
	// Hub is optional; without it /ws is not mounted
	Hub *ws.Hub

	Auth      fiber.Handler
	RateLimit fiber.Handler

	RendersDir  string
	AssetsDir   string
	BodyLimitMB int
	Logger      zerolog.Logger
}

func New(opts Options) *fiber.App {
	bodyLimit := opts.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 100
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    bodyLimit * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(opts.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Static("/renders", opts.RendersDir)
	if opts.AssetsDir != "" {
		app.Static("/assets", opts.AssetsDir)
	}

	app.Get("/health", opts.Health.Health)

	auth := passThrough(opts.Auth)
	app.Post("/render", auth, passThrough(opts.RateLimit), opts.Render.Start)
	app.Get("/status/:jobId", opts.Render.Status)
	app.Post("/cancel/:jobId", auth, opts.Render.Cancel)
	app.Get("/files", opts.Render.Files)

	if opts.Assets != nil {
		app.Post("/assets", auth, opts.Assets.Upload)
		app.Delete("/assets/:filename", auth, opts.Assets.Delete)
	}

	if opts.Hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
			opts.Hub.HandleConnection(c, c.Params("jobId"))
		}))
	}

	return app
}

func passThrough(h fiber.Handler) fiber.Handler {
	if h != nil {
		return h
	}
	return func(c *fiber.Ctx) error { return c.Next() }
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	switch code {
	case fiber.StatusNotFound:
		return response.NotFound(c, message)
	case fiber.StatusRequestEntityTooLarge, fiber.StatusBadRequest:
		return response.ValidationError(c, message, nil)
	}
	return response.Error(c, code, response.CodeServiceError, message, nil)
}
