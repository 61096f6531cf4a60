package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/postpilot-app/postpilot/internal/store"
)

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

func GetTenant(c *fiber.Ctx) store.Tenant {
	userID, _ := c.Locals("user_id").(string)
	orgID, _ := c.Locals("org_id").(string)
	return store.Tenant{UserID: userID, OrgID: orgID}
}
