package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quesurifn/calendar-adapter/calendar"
	t "github.com/quesurifn/calendar-adapter/types"
)

func (h Handlers) SummarizeEventsHandler(c *fiber.Ctx) error {
	h.Logger.Info("SummarizeEventsHandler", zap.String("start", c.Query("start")), zap.String("end", c.Query("end")))

	start, end, err := queryRange(c)
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.context(c)
	defer cancel()

	summary, err := h.Calendar.Summarize(ctx, start, end)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(t.SummaryResponse{Summary: summary})
}

func (h Handlers) NextEventHandler(c *fiber.Ctx) error {
	keyword := c.Query("keyword")
	h.Logger.Info("NextEventHandler", zap.String("keyword", keyword))

	if keyword == "" {
		return h.fail(c, calendar.MissingParameter("keyword"))
	}

	ctx, cancel := h.context(c)
	defer cancel()

	nextEvent, err := h.Calendar.NextEvent(ctx, keyword)
	if err != nil {
		return h.fail(c, err)
	}

	h.Logger.Info("NextEventHandler", zap.String("id", nextEvent.ID), zap.Time("start", nextEvent.Start))

	return c.JSON(t.NewEvent(nextEvent))
}

func (h Handlers) SearchByLocationHandler(c *fiber.Ctx) error {
	location := c.Query("location")
	h.Logger.Info("SearchByLocationHandler", zap.String("location", location))

	if location == "" {
		return h.fail(c, calendar.MissingParameter("location"))
	}

	ctx, cancel := h.context(c)
	defer cancel()

	events, err := h.Calendar.SearchByLocation(ctx, location)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(t.NewEvents(events))
}
