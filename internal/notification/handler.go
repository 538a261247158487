package notification

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/towlink/towlink/internal/apperr"
	"github.com/towlink/towlink/internal/middleware"
	"github.com/towlink/towlink/internal/responses"
	"github.com/towlink/towlink/internal/validation"
)

const defaultListLimit = 50

// Handler exposes the notification inbox.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

type listQuery struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
}

type recordResponse struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	RideRequestID string     `json:"rideRequestId,omitempty"`
	ReadAt        *time.Time `json:"readAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// List returns the caller's notifications, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	var q listQuery
	if err := validation.BindQuery(c, &q); err != nil {
		return err
	}
	if q.Limit == 0 {
		q.Limit = defaultListLimit
	}
	records, err := h.store.List(c.UserContext(), middleware.UserID(c), q.Limit)
	if err != nil {
		return err
	}
	out := make([]recordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, recordResponse{
			ID:            r.ID,
			Kind:          r.Kind,
			Title:         r.Title,
			Body:          r.Body,
			RideRequestID: r.RideRequestID,
			ReadAt:        r.ReadAt,
			CreatedAt:     r.CreatedAt,
		})
	}
	return responses.OK(c, out)
}

// MarkRead flags one of the caller's notifications as read.
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	err := h.store.MarkRead(c.UserContext(), c.Params("id"), middleware.UserID(c), time.Now())
	if errors.Is(err, ErrRecordNotFound) {
		return apperr.Wrap(apperr.CodeNotFound, err, "notification not found").WithReason(apperr.ReasonMissing)
	}
	if err != nil {
		return err
	}
	return responses.OK(c, fiber.Map{"id": c.Params("id"), "read": true})
}
