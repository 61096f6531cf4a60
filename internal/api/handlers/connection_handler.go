package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/postpilot-app/postpilot/internal/store"
	"github.com/postpilot-app/postpilot/internal/transfer"
)

type ConnectionHandler struct {
	conns store.ConnectionDirectory
}

func NewConnectionHandler(conns store.ConnectionDirectory) *ConnectionHandler {
	return &ConnectionHandler{conns: conns}
}

// ListConnections returns the tenant's provider connections with tokens
// redacted.
func (h *ConnectionHandler) ListConnections(c *fiber.Ctx) error {
	tenant := GetTenant(c)

	conns, err := h.conns.List(c.Context(), tenant)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list connections",
		})
	}

	infos := make([]*transfer.ConnectionInfo, 0, len(conns))
	for _, conn := range conns {
		info := &transfer.ConnectionInfo{
			ID:       conn.ID,
			Provider: string(conn.Provider),
			PageID:   conn.PageID,
			IGUserID: conn.IGUserID,
		}
		if !conn.ExpiresAt.IsZero() {
			info.ExpiresAt = conn.ExpiresAt.Format(time.RFC3339)
		}
		infos = append(infos, info)
	}

	return c.Status(fiber.StatusOK).JSON(infos)
}
