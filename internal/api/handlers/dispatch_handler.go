package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postdispatch/internal/queue"
)

type DispatchHandler struct {
	runner queue.Runner
}

func NewDispatchHandler(runner queue.Runner) *DispatchHandler {
	return &DispatchHandler{runner: runner}
}

// Run dispatches every due post and reports what was done. Only a failure to
// reach the datastore is a 500; platform failures are part of the summary.
func (h *DispatchHandler) Run(c *fiber.Ctx) error {
	summary, err := h.runner.Run(c.UserContext())
	if err != nil {
		slog.Error("dispatch run failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	message := "Dispatch completed"
	if summary.Selected == 0 {
		message = "Nothing to process"
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": message,
		"summary": summary,
	})
}
