package identity

import (
	"github.com/gofiber/fiber/v2"

	"github.com/towlink/towlink/internal/responses"
	"github.com/towlink/towlink/internal/validation"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Phone    string `json:"phone" validate:"required,min=6,max=20"`
	PIN      string `json:"pin" validate:"required,min=4,max=12"`
	Name     string `json:"name" validate:"required,max=120"`
	PhotoURL string `json:"photoUrl" validate:"omitempty,url"`
	Role     string `json:"role" validate:"required,oneof=client trucker"`
}

type userResponse struct {
	ID        string   `json:"id"`
	Phone     string   `json:"phone"`
	Name      string   `json:"name"`
	PhotoURL  string   `json:"photoUrl,omitempty"`
	Role      string   `json:"role"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	CreatedAt string   `json:"createdAt"`
}

func toUserResponse(u User) userResponse {
	return userResponse{
		ID:        u.ID,
		Phone:     u.Phone,
		Name:      u.Name,
		PhotoURL:  u.PhotoURL,
		Role:      u.Role,
		Lat:       u.Lat,
		Lng:       u.Lng,
		CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	user, err := h.service.Register(c.UserContext(), Registration{
		Credentials: Credentials{Phone: req.Phone, PIN: req.PIN},
		Name:        req.Name,
		PhotoURL:    req.PhotoURL,
		Role:        req.Role,
	})
	if err != nil {
		return err
	}
	return responses.Created(c, toUserResponse(user))
}

// Me returns the caller's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	user, err := h.service.Get(c.UserContext(), callerID(c))
	if err != nil {
		return err
	}
	return responses.OK(c, toUserResponse(user))
}

type locationRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lng *float64 `json:"lng" validate:"required,longitude"`
}

// UpdateLocation stores the caller's coordinates.
func (h *Handler) UpdateLocation(c *fiber.Ctx) error {
	var req locationRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	if err := h.service.UpdateLocation(c.UserContext(), callerID(c), *req.Lat, *req.Lng); err != nil {
		return err
	}
	return responses.OK(c, fiber.Map{"lat": *req.Lat, "lng": *req.Lng})
}

// callerID reads the user id stored by the JWT middleware.
func callerID(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}
