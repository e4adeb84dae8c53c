package serverutils

import (
	"errors"

	"course-advisor-be/internal/pkg/logger"
	"course-advisor-be/pkg/advisor"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware converts handler errors into the response envelope.
// Only client mistakes carry detail; anything else is logged and reported as
// a generic 500.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var (
			verr  *advisor.ValidationError
			vErrs validator.ValidationErrors
			fErr  *fiber.Error
		)
		switch {
		case errors.As(err, &verr):
			return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponse(fiber.StatusBadRequest, verr.Error(), []FieldError{{Field: verr.Field, Rule: verr.Message}}))
		case errors.As(err, &vErrs):
			return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponse(fiber.StatusBadRequest, "Validation failed", toFieldErrors(vErrs)))
		case errors.As(err, &fErr):
			return ctx.Status(fErr.Code).JSON(ErrorResponse(fErr.Code, fErr.Message, nil))
		}

		log.Error("HTTP", "Unhandled request error", map[string]interface{}{
			"method": ctx.Method(),
			"path":   ctx.Path(),
			"error":  err.Error(),
		})
		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, "Internal server error", nil))
	}
}
