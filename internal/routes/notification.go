package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/towlink/towlink/internal/notification"
)

// RegisterNotificationRoutes wires the caller's notification records.
func RegisterNotificationRoutes(r fiber.Router, s *Services, authn fiber.Handler) {
	h := notification.NewHandler(s.Records)
	group := r.Group("/notifications", authn)
	group.Get("", h.List)
	group.Patch("/:id/read", h.MarkRead)
}
