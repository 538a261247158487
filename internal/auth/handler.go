package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/towlink/towlink/internal/identity"
	"github.com/towlink/towlink/internal/responses"
	"github.com/towlink/towlink/internal/validation"
)

// Handler exposes auth endpoints for login/refresh/logout.
type Handler struct {
	ids *identity.Service
	svc *Service
}

func NewHandler(ids *identity.Service, svc *Service) *Handler {
	return &Handler{ids: ids, svc: svc}
}

type loginRequest struct {
	Phone string `json:"phone" validate:"required"`
	PIN   string `json:"pin" validate:"required"`
}

type loginResponse struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	TokenPair
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	user, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{Phone: req.Phone, PIN: req.PIN})
	if err != nil {
		return err
	}
	pair, err := h.svc.Login(user)
	if err != nil {
		return err
	}
	return responses.OK(c, loginResponse{UserID: user.ID, Role: user.Role, TokenPair: pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := validation.BindJSON(c, &req); err != nil {
		return err
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return responses.OK(c, fiber.Map{"accessToken": token, "expiresIn": exp})
}

// Logout invalidates the caller's existing tokens by bumping the token version.
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if err := h.svc.Logout(c.UserContext(), uid); err != nil {
		return err
	}
	return responses.OK(c, fiber.Map{"status": "logged_out"})
}
