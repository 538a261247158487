package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/towlink/towlink/internal/identity"
	"github.com/towlink/towlink/internal/middleware"
	"github.com/towlink/towlink/internal/ride"
)

// RegisterRideRoutes wires the ride request lifecycle and offer endpoints.
func RegisterRideRoutes(r fiber.Router, s *Services, authn fiber.Handler) {
	h := ride.NewHandler(s.Ride)
	client := middleware.RequireRole(identity.RoleClient)
	trucker := middleware.RequireRole(identity.RoleTrucker)
	party := middleware.RequireRole(identity.RoleClient, identity.RoleTrucker)

	group := r.Group("/ride-request", authn)
	group.Post("/create", client, h.Create)
	group.Patch("/post", client, h.Post)
	group.Patch("/add-offer", trucker, h.AddOffer)
	group.Patch("/counter-offer", client, h.CounterOffer)
	group.Patch("/accept", client, h.Accept)
	group.Patch("/cancel", client, h.Cancel)
	group.Patch("/complete", trucker, h.Complete)
	group.Post("/reopen", party, h.Reopen)
	group.Get("/mine", client, h.Mine)
	group.Get("/open", trucker, h.Open)
	group.Get("/:id/offers", client, h.Offers)
	group.Get("/:id", h.Get)
}
