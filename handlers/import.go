package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quesurifn/calendar-adapter/calendar"
	t "github.com/quesurifn/calendar-adapter/types"
)

func (h Handlers) ImportCalendarHandler(c *fiber.Ctx) error {
	var req t.ImportRequest
	if err := parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}

	h.Logger.Info("ImportCalendarHandler", zap.String("url", req.ICSUrl))

	if req.ICSUrl == "" {
		return h.fail(c, calendar.MissingField("icsUrl"))
	}
	if h.Feed == nil {
		return h.fail(c, fiber.NewError(fiber.StatusNotImplemented, "Calendar import is disabled"))
	}

	ctx, cancel := h.context(c)
	defer cancel()

	result, err := h.Calendar.Import(ctx, h.Feed, req.ICSUrl)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(t.ImportResponse{Imported: result.Imported, Skipped: result.Skipped})
}
