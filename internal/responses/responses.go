package responses

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/towlink/towlink/internal/apperr"
)

type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c *fiber.Ctx, data any) error {
	return Status(c, fiber.StatusOK, data)
}

// Created writes a 201 success envelope.
func Created(c *fiber.Ctx, data any) error {
	return Status(c, fiber.StatusCreated, data)
}

func Status(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(SuccessEnvelope{Success: true, Data: data})
}

// Error renders err as a failure envelope. Untyped errors become
// INTERNAL_ERROR; their text is only exposed outside production.
func Error(c *fiber.Ctx, logger zerolog.Logger, production bool, err error) error {
	if err == nil {
		err = errors.New("unknown error")
	}

	var fe *fiber.Error
	if errors.As(err, &fe) && apperr.As(err) == nil {
		return c.Status(fe.Code).JSON(ErrorEnvelope{Message: fe.Message, Code: fiberCode(fe.Code)})
	}

	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "unexpected error")
	}
	meta := apperr.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if typed.Code() != apperr.CodeInternal {
		if m := typed.Message(); m != "" {
			msg = m
		}
	} else if !production {
		msg = err.Error()
	}

	payload := ErrorEnvelope{Message: msg, Code: string(typed.Code())}
	if meta.DetailsAllowed {
		payload.Details = typed.Details()
	}

	event := logger.Warn()
	if typed.Code() == apperr.CodeInternal {
		event = logger.Error()
	}
	reqID, _ := c.Locals("request_id").(string)
	event.Err(err).
		Str("request_id", reqID).
		Str("code", string(typed.Code())).
		Str("reason", typed.Reason()).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg("request.error")

	return c.Status(meta.HTTPStatus).JSON(payload)
}

func fiberCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return string(apperr.CodeNotFound)
	case fiber.StatusUnauthorized:
		return string(apperr.CodeUnauthorized)
	case fiber.StatusForbidden:
		return string(apperr.CodeForbidden)
	case fiber.StatusTooManyRequests:
		return string(apperr.CodeRateLimit)
	case fiber.StatusBadRequest, fiber.StatusMethodNotAllowed, fiber.StatusUnprocessableEntity:
		return string(apperr.CodeValidation)
	default:
		return string(apperr.CodeInternal)
	}
}
