package handlers

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/service"
)

type PlatformHandler struct {
	cs  service.ConnectionService
	cfg config.Config
}

func NewPlatformHandler(cs service.ConnectionService, cfg config.Config) *PlatformHandler {
	return &PlatformHandler{
		cs:  cs,
		cfg: cfg,
	}
}

// AddConnection redirects to the platform's consent page.
func (h *PlatformHandler) AddConnection(c *fiber.Ctx) error {
	platform, err := platformParam(c)
	if err != nil {
		return errorResponse(c, err, "")
	}

	authURL, err := h.cs.AuthURL(c.Context(), GetWorkspaceID(c), platform)
	if err != nil {
		slog.Info(err.Error())
		return errorResponse(c, err, "Unable to start authorization")
	}
	return c.Redirect(authURL)
}

func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	platform, err := platformParam(c)
	if err != nil {
		return errorResponse(c, err, "")
	}

	if reason := c.Query("error"); reason != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Authorization was not granted: %s", reason),
		})
	}

	if _, err := h.cs.Connect(c.Context(), platform, c.Query("code"), c.Query("state")); err != nil {
		slog.Info("connect failed", "platform", platform, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to connect account",
		})
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) ListConnections(c *fiber.Ctx) error {
	connections, err := h.cs.List(c.Context(), GetWorkspaceID(c))
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch connections",
		})
	}

	return c.Status(fiber.StatusOK).JSON(connections)
}

func (h *PlatformHandler) DeleteConnection(c *fiber.Ctx) error {
	platform, err := platformParam(c)
	if err != nil {
		return errorResponse(c, err, "")
	}

	if err := h.cs.Disconnect(c.Context(), GetWorkspaceID(c), platform); err != nil {
		return errorResponse(c, err, "Unable to delete connection")
	}

	return c.SendStatus(fiber.StatusOK)
}
