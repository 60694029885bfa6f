package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quesurifn/calendar-adapter/calendar"
	t "github.com/quesurifn/calendar-adapter/types"
)

// Status maps an adapter error to its HTTP status.
func Status(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	switch calendar.KindOf(err) {
	case calendar.KindValidation:
		return fiber.StatusBadRequest
	case calendar.KindNotFound:
		return fiber.StatusNotFound
	case calendar.KindPermissionDenied:
		return fiber.StatusServiceUnavailable
	case calendar.KindUpstream:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (h Handlers) fail(c *fiber.Ctx, err error) error {
	code := Status(err)
	if code >= fiber.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Stringer("kind", calendar.KindOf(err)),
			zap.Error(err),
		)
	}
	return c.Status(code).JSON(t.ErrorResponse{Error: err.Error()})
}

// ErrorHandler renders errors escaping a route, unknown routes included, as
// {"error": message}.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	h := Handlers{Logger: logger}
	return func(c *fiber.Ctx, err error) error {
		return h.fail(c, err)
	}
}
