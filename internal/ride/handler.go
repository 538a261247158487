package ride

import (
	"github.com/gofiber/fiber/v2"

	"github.com/towlink/towlink/internal/apperr"
	"github.com/towlink/towlink/internal/middleware"
	"github.com/towlink/towlink/internal/responses"
	"github.com/towlink/towlink/internal/validation"
)

// Handler exposes the ride request endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /ride-request/create.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	r, err := h.service.Create(c.UserContext(), CreateInput{
		RequesterID: middleware.UserID(c),
		Origin:      req.Origin.point(),
		Destination: req.Destination.point(),
		PickupAt:    *req.PickupDate,
		Vehicle: Vehicle{
			Category:   req.Vehicle.Category,
			LoadState:  req.Vehicle.LoadState,
			WheelState: req.Vehicle.WheelState,
		},
	})
	if err != nil {
		return err
	}
	return responses.Created(c, toRideResponse(r, r.RequesterID))
}

// Post handles PATCH /ride-request/post.
func (h *Handler) Post(c *fiber.Ctx) error {
	var req rideIDRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	r, err := h.service.Post(c.UserContext(), middleware.UserID(c), req.RideID)
	if err != nil {
		return err
	}
	return responses.OK(c, toRideResponse(r, middleware.UserID(c)))
}

// AddOffer handles PATCH /ride-request/add-offer. A new offer answers 201, an
// update of the trucker's existing offer 200.
func (h *Handler) AddOffer(c *fiber.Ctx) error {
	var req offerRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	offer, created, err := h.service.SubmitOffer(c.UserContext(), OfferInput{
		TruckerID: middleware.UserID(c),
		RideID:    req.RideID,
		Price:     req.Price,
		ETA:       req.ETA,
	})
	if err != nil {
		return err
	}
	if created {
		return responses.Created(c, toOfferResponse(offer))
	}
	return responses.OK(c, toOfferResponse(offer))
}

// CounterOffer handles PATCH /ride-request/counter-offer.
func (h *Handler) CounterOffer(c *fiber.Ctx) error {
	var req counterOfferRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	offer, err := h.service.CounterOffer(c.UserContext(), middleware.UserID(c), req.OfferID, req.CounterPrice)
	if err != nil {
		return err
	}
	return responses.OK(c, toOfferResponse(offer))
}

// Accept handles PATCH /ride-request/accept.
func (h *Handler) Accept(c *fiber.Ctx) error {
	var req acceptRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	r, err := h.service.Accept(c.UserContext(), middleware.UserID(c), req.RideID, req.OfferID)
	if err != nil {
		return err
	}
	return responses.OK(c, toRideResponse(r, middleware.UserID(c)))
}

// Complete handles PATCH /ride-request/complete.
func (h *Handler) Complete(c *fiber.Ctx) error {
	var req rideIDRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	r, err := h.service.Complete(c.UserContext(), middleware.UserID(c), req.RideID)
	if err != nil {
		return err
	}
	return responses.OK(c, toRideResponse(r, middleware.UserID(c)))
}

// Cancel handles PATCH /ride-request/cancel.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	var req rideIDRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	r, err := h.service.Cancel(c.UserContext(), middleware.UserID(c), req.RideID)
	if err != nil {
		return err
	}
	return responses.OK(c, toRideResponse(r, middleware.UserID(c)))
}

// Reopen handles POST /ride-request/reopen for either party of an accepted ride.
func (h *Handler) Reopen(c *fiber.Ctx) error {
	var req reopenRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	r, err := h.service.Reopen(c.UserContext(), middleware.UserID(c), req.RideID, req.Reason)
	if err != nil {
		return err
	}
	return responses.OK(c, toRideResponse(r, middleware.UserID(c)))
}

// Get handles GET /ride-request/:id.
func (h *Handler) Get(c *fiber.Ctx) error {
	r, err := h.service.Get(c.UserContext(), middleware.UserID(c), middleware.Role(c), c.Params("id"))
	if err != nil {
		return err
	}
	return responses.OK(c, toRideResponse(r, middleware.UserID(c)))
}

// Offers handles GET /ride-request/:id/offers.
func (h *Handler) Offers(c *fiber.Ctx) error {
	views, err := h.service.ListOffers(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return responses.OK(c, toOfferViews(views))
}

// Mine handles GET /ride-request/mine.
func (h *Handler) Mine(c *fiber.Ctx) error {
	var q listQuery
	if err := validation.BindQuery(c, &q); err != nil {
		return err
	}
	rides, err := h.service.ListMine(c.UserContext(), middleware.UserID(c), q.Limit)
	if err != nil {
		return err
	}
	return responses.OK(c, toRideResponses(rides, middleware.UserID(c)))
}

// Open handles GET /ride-request/open.
func (h *Handler) Open(c *fiber.Ctx) error {
	var q openQuery
	if err := validation.BindQuery(c, &q); err != nil {
		return err
	}
	if (q.Lat == nil) != (q.Lng == nil) {
		return apperr.Validation("validation failed", map[string]string{"lat": "lat and lng must be given together"})
	}
	query := OpenQuery{RadiusKm: q.RadiusKm, Limit: q.Limit}
	if q.Lat != nil {
		query.Center = &Point{Lat: *q.Lat, Lng: *q.Lng}
	}
	nearby, err := h.service.ListOpen(c.UserContext(), query)
	if err != nil {
		return err
	}
	viewer := middleware.UserID(c)
	out := make([]rideResponse, 0, len(nearby))
	for _, n := range nearby {
		resp := toRideResponse(n.Ride, viewer)
		if query.Center != nil {
			d := n.DistanceKm
			resp.DistanceKm = &d
		}
		out = append(out, resp)
	}
	return responses.OK(c, out)
}
