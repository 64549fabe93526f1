package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/service"
)

func GetWorkspaceID(c *fiber.Ctx) int64 {
	id, _ := c.Locals("workspace_id").(int64)
	return id
}

func platformParam(c *fiber.Ctx) (models.Platform, error) {
	p, err := models.ParsePlatform(c.Params("platform"))
	if err != nil {
		return "", errors.Join(service.ErrInvalidInput, err)
	}
	return p, nil
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrNotConnected):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrUnknownPost):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrPostBusy):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(c *fiber.Ctx, err error, message string) error {
	status := errorStatus(err)
	if status != fiber.StatusInternalServerError {
		message = err.Error()
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
