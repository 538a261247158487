package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/towlink/towlink/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// Struct validates dest against its `validate` tags.
func Struct(dest any) error {
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// BindJSON decodes the request body into dest and validates it.
func BindJSON(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, "invalid request body").
			WithDetails(map[string]string{"body": err.Error()})
	}
	return Struct(dest)
}

// BindQuery decodes query parameters into dest and validates it.
func BindQuery(c *fiber.Ctx, dest any) error {
	if err := c.QueryParser(dest); err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, "invalid query").
			WithDetails(map[string]string{"query": err.Error()})
	}
	return Struct(dest)
}

func formatValidationErrors(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Namespace()[strings.Index(fieldErr.Namespace(), ".")+1:]] = validationMessage(fieldErr)
		}
		return apperr.Validation("validation failed", details)
	}
	return apperr.Wrap(apperr.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "uuid4", "uuid":
		return "must be a valid id"
	case "latitude":
		return "must be a valid latitude"
	case "longitude":
		return "must be a valid longitude"
	}
	return "is invalid"
}
