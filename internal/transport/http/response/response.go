// Package response writes the JSON envelopes every endpoint answers with.
package response

import (
	"errors"

	"github.com/fastplat/auth/internal/domain"
	"github.com/gofiber/fiber/v2"
)

var statusByKind = map[domain.Kind]int{
	domain.KindValidationFailed:    fiber.StatusBadRequest,
	domain.KindConflict:            fiber.StatusConflict,
	domain.KindNotFound:            fiber.StatusNotFound,
	domain.KindInvalidCredentials:  fiber.StatusBadRequest,
	domain.KindAccountNotActivated: fiber.StatusForbidden,
	domain.KindNoCodeIssued:        fiber.StatusBadRequest,
	domain.KindInvalidCode:         fiber.StatusBadRequest,
	domain.KindDeliveryFailed:      fiber.StatusBadGateway,
	domain.KindUnauthorized:        fiber.StatusUnauthorized,
	domain.KindForbidden:           fiber.StatusForbidden,
	domain.KindInternal:            fiber.StatusInternalServerError,
}

func StatusFor(kind domain.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// Error never exposes the wrapped cause of internal errors.
func Error(c *fiber.Ctx, err error) error {
	kind := domain.KindOf(err)

	message := "internal error"
	if kind != domain.KindInternal {
		var e *domain.Error
		if errors.As(err, &e) {
			message = e.Message
		}
	}

	return c.Status(StatusFor(kind)).JSON(fiber.Map{
		"success": false,
		"error":   kind,
		"message": message,
	})
}

func OK(c *fiber.Ctx, status int, body fiber.Map) error {
	if body == nil {
		body = fiber.Map{}
	}
	body["success"] = true
	return c.Status(status).JSON(body)
}
