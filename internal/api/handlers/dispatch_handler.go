package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/postpilot-app/postpilot/internal/dispatcher"
)

type DispatchHandler struct {
	d *dispatcher.Dispatcher
}

func NewDispatchHandler(d *dispatcher.Dispatcher) *DispatchHandler {
	return &DispatchHandler{d: d}
}

// RunDispatch triggers one dispatch cycle. Concurrent triggers are safe
// because claiming is atomic.
func (h *DispatchHandler) RunDispatch(c *fiber.Ctx) error {
	if err := h.d.RunOnce(c.Context()); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ok",
	})
}
