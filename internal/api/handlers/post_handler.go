package handlers

import (
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postdispatch/internal/queue"
	"github.com/maheshrc27/postdispatch/internal/service"
	"github.com/maheshrc27/postdispatch/internal/transfer"
)

type PostHandler struct {
	s     service.PostService
	queue queue.Enqueuer
}

func NewPostHandler(service service.PostService, enqueuer queue.Enqueuer) *PostHandler {
	return &PostHandler{s: service, queue: enqueuer}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)

	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	var file *multipart.FileHeader
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		file, _ = c.FormFile("file")
	}

	post, err := h.s.Create(c.Context(), workspaceID, &pc, file)
	if err != nil {
		slog.Info(err.Error())
		return errorResponse(c, err, "Unable to schedule post")
	}

	delay := time.Until(post.ScheduledAt)
	if h.queue != nil {
		if err := queue.EnqueuePost(h.queue, queue.DispatchPostPayload{PostID: post.ID}, delay); err != nil {
			// The periodic run still picks the post up.
			slog.Error("failed to queue post", "post_id", post.ID, "error", err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Post scheduled successfully",
		"post":    post,
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	posts, err := h.s.List(c.Context(), GetWorkspaceID(c))
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	post, err := h.s.Get(c.Context(), GetWorkspaceID(c), int64(postID))
	if err != nil {
		return errorResponse(c, err, "Unable to get post")
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

// PostLogs returns the attempt history of a post, oldest first.
func (h *PostHandler) PostLogs(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	logs, err := h.s.Logs(c.Context(), GetWorkspaceID(c), int64(postID))
	if err != nil {
		return errorResponse(c, err, "Unable to get post history")
	}

	return c.Status(fiber.StatusOK).JSON(logs)
}

func (h *PostHandler) ReschedulePost(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	var req transfer.RescheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	post, err := h.s.Reschedule(c.Context(), GetWorkspaceID(c), int64(postID), req.ScheduledTime)
	if err != nil {
		slog.Info(err.Error())
		return errorResponse(c, err, "Unable to reschedule post")
	}

	if h.queue != nil {
		if err := queue.EnqueuePost(h.queue, queue.DispatchPostPayload{PostID: post.ID}, time.Until(post.ScheduledAt)); err != nil {
			slog.Error("failed to queue post", "post_id", post.ID, "error", err)
		}
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	if err := h.s.Remove(c.Context(), GetWorkspaceID(c), int64(postID)); err != nil {
		return errorResponse(c, err, "Unable to remove post")
	}

	return c.SendStatus(fiber.StatusOK)
}
