package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/maheshrc27/postdispatch/internal/api/middleware"
	"github.com/maheshrc27/postdispatch/internal/metrics"
	"github.com/maheshrc27/postdispatch/pkg/utils"
)

type Routes struct {
	Auth     *middleware.AuthMiddleware
	Dispatch *DispatchHandler
	Post     *PostHandler
	Platform *PlatformHandler
}

func RegisterRoutes(app *fiber.App, r Routes) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	internal := app.Group("/internal", r.Auth.Authenticate(utils.ScopeDispatch))
	internal.Post("/dispatch/run", r.Dispatch.Run)

	app.Get("/auth/:platform/callback", r.Platform.CallbackHandler)

	session := r.Auth.Authenticate(middleware.ScopeSession)
	app.Get("/auth/:platform", session, r.Platform.AddConnection)

	api := app.Group("/api", session)

	api.Post("/posts", r.Post.CreatePost)
	api.Get("/posts", r.Post.ListPosts)
	api.Get("/posts/:id", r.Post.GetPost)
	api.Get("/posts/:id/logs", r.Post.PostLogs)
	api.Post("/posts/:id/reschedule", r.Post.ReschedulePost)
	api.Delete("/posts/:id", r.Post.RemovePost)

	api.Get("/connections", r.Platform.ListConnections)
	api.Delete("/connections/:platform", r.Platform.DeleteConnection)
}
